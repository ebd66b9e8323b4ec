package checkoutstripe

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"unicode/utf8"

	formcodec "github.com/go-playground/form/v4"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/services/orders"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 500
	maxImageLength       = 2000
	maxItemPrice         = 999999.99
	maxItemQuantity      = 100
	minOrderTotalInCents = 50
)

type CheckoutRequest struct {
	Items         []CartItem `json:"items" form:"items"`
	CustomerEmail string     `json:"customerEmail" form:"customerEmail"`
}

type CartItem struct {
	ProductID   string  `json:"productId" form:"productId"`
	Name        string  `json:"name" form:"name"`
	Description string  `json:"description" form:"description"`
	Price       float64 `json:"price" form:"price"`
	Quantity    int64   `json:"quantity" form:"quantity"`
	Image       string  `json:"image" form:"image"`
}

// NewFromRequest decodes a json body or, for any other content type, form values such as
// items[0].name=Racket&items[0].price=120&items[0].quantity=1.
func NewFromRequest(r *http.Request) (CheckoutRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		req := CheckoutRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			return CheckoutRequest{}, myerrors.NewInvalidInputError(fmt.Errorf("error parsing request: %s", err))
		}
		return req, nil
	}

	err := r.ParseForm()
	if err != nil {
		return CheckoutRequest{}, myerrors.NewInvalidInputError(err)
	}
	return NewFromValues(r.Form)
}

func NewFromValues(values url.Values) (CheckoutRequest, error) {
	req := CheckoutRequest{}
	err := formcodec.NewDecoder().Decode(&req, values)
	if err != nil {
		return req, myerrors.NewInvalidInputError(fmt.Errorf("error decoding form: %s", err))
	}
	return req, nil
}

// Sanitize truncates free text to the lengths the processor accepts.
func (r CheckoutRequest) Sanitize() CheckoutRequest {
	items := make([]CartItem, 0, len(r.Items))
	for _, item := range r.Items {
		item.Name = truncate(item.Name, maxNameLength)
		item.Description = truncate(item.Description, maxDescriptionLength)
		item.Image = truncate(item.Image, maxImageLength)
		items = append(items, item)
	}
	r.Items = items
	return r
}

// Validate reports every invalid item at once.
func (r CheckoutRequest) Validate() error {
	if len(r.Items) == 0 {
		return myerrors.NewInvalidInputErrorf("Cart is empty. Add items before checkout.")
	}

	problems := []string{}
	for i, item := range r.Items {
		if item.Name == "" {
			problems = append(problems, fmt.Sprintf("Item %d: Name is required", i+1))
		}
		if item.Price <= 0 {
			problems = append(problems, fmt.Sprintf("Item %d: Price must be a positive number", i+1))
		}
		if item.Price > maxItemPrice {
			problems = append(problems, fmt.Sprintf("Item %d: Price exceeds maximum allowed amount", i+1))
		}
		if item.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("Item %d: Quantity must be a positive integer", i+1))
		}
		if item.Quantity > maxItemQuantity {
			problems = append(problems, fmt.Sprintf("Item %d: Quantity exceeds maximum allowed (%d)", i+1, maxItemQuantity))
		}
	}
	if len(problems) > 0 {
		return myerrors.NewInvalidInputErrorf("Validation failed").WithDetail("errors", problems)
	}

	if r.SubtotalInCents() < minOrderTotalInCents {
		return myerrors.NewInvalidInputErrorf("Order total must be at least $%.2f", orders.ToMajorUnits(minOrderTotalInCents))
	}
	return nil
}

func (r CheckoutRequest) OrderItems() []orders.Item {
	items := make([]orders.Item, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, orders.Item{
			ProductID:    item.ProductID,
			Name:         item.Name,
			PriceInCents: orders.ToMinorUnits(item.Price),
			Quantity:     item.Quantity,
			Image:        item.Image,
		})
	}
	return items
}

func (r CheckoutRequest) SubtotalInCents() int64 {
	subtotal := int64(0)
	for _, item := range r.Items {
		subtotal += orders.ToMinorUnits(item.Price) * item.Quantity
	}
	return subtotal
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
