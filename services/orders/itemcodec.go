package orders

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

// Stripe limits metadata values to 500 characters and an object to 50 keys.
const (
	maxMetadataValueLength = 500
	maxItemChunks          = 40

	metadataItems       = "items"
	metadataItemChunks  = "items_chunks"
	metadataItemsNoImgs = "items_images_omitted"
)

// ItemsMetadataPrefix starts every metadata key the item codec writes.
const ItemsMetadataPrefix = metadataItems

const itemsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "price", "quantity"],
    "properties": {
      "productId": { "type": "string" },
      "name":      { "type": "string", "minLength": 1, "maxLength": 100 },
      "price":     { "type": "number", "exclusiveMinimum": 0 },
      "quantity":  { "type": "integer", "minimum": 1 },
      "image":     { "type": "string" }
    }
  }
}`

var itemsSchemaLoader = gojsonschema.NewStringLoader(itemsSchema)

type metadataItem struct {
	ProductID string  `json:"productId,omitempty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

// EncodeItemsMetadata freezes the cart into processor metadata. When the full list does not
// fit one value, images are dropped first and the remainder is split over numbered keys.
func EncodeItemsMetadata(items []Item) (map[string]string, error) {
	encoded, err := marshalItems(items, true)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(encoded) <= maxMetadataValueLength {
		return map[string]string{metadataItems: encoded}, nil
	}

	metadata := map[string]string{metadataItemsNoImgs: "true"}
	encoded, err = marshalItems(items, false)
	if err != nil {
		return nil, err
	}
	runes := []rune(encoded)
	if len(runes) <= maxMetadataValueLength {
		metadata[metadataItems] = encoded
		return metadata, nil
	}

	chunks := (len(runes) + maxMetadataValueLength - 1) / maxMetadataValueLength
	if chunks > maxItemChunks {
		return nil, fmt.Errorf("cart too large to record: %d characters", len(runes))
	}
	for i := 0; i < chunks; i++ {
		end := min((i+1)*maxMetadataValueLength, len(runes))
		metadata[chunkKey(i)] = string(runes[i*maxMetadataValueLength : end])
	}
	metadata[metadataItemChunks] = strconv.Itoa(chunks)

	return metadata, nil
}

// DecodeItemsMetadata reconstructs the item snapshot. It reports false when the items are
// missing or do not validate; the caller keeps the order and flags its items as unavailable.
func DecodeItemsMetadata(metadata map[string]string) ([]Item, bool, error) {
	encoded, err := joinItemChunks(metadata)
	if err != nil {
		return []Item{}, false, err
	}
	if encoded == "" {
		return []Item{}, false, nil
	}

	result, err := gojsonschema.Validate(itemsSchemaLoader, gojsonschema.NewStringLoader(encoded))
	if err != nil {
		return []Item{}, false, fmt.Errorf("items metadata is not valid json: %w", err)
	}
	if !result.Valid() {
		var sb strings.Builder
		for _, e := range result.Errors() {
			sb.WriteString(e.String())
			sb.WriteString("; ")
		}
		return []Item{}, false, fmt.Errorf("items metadata does not conform to schema: %s", sb.String())
	}

	decoded := []metadataItem{}
	err = json.Unmarshal([]byte(encoded), &decoded)
	if err != nil {
		return []Item{}, false, fmt.Errorf("error decoding items metadata: %w", err)
	}

	items := make([]Item, 0, len(decoded))
	for _, d := range decoded {
		items = append(items, Item{
			ProductID:    d.ProductID,
			Name:         d.Name,
			PriceInCents: ToMinorUnits(d.Price),
			Quantity:     d.Quantity,
			Image:        d.Image,
		})
	}
	return items, true, nil
}

func marshalItems(items []Item, withImages bool) (string, error) {
	wire := make([]metadataItem, 0, len(items))
	for _, item := range items {
		mi := metadataItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     ToMajorUnits(item.PriceInCents),
			Quantity:  item.Quantity,
		}
		if withImages {
			mi.Image = item.Image
		}
		wire = append(wire, mi)
	}
	encoded, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("error encoding items: %w", err)
	}
	return string(encoded), nil
}

func joinItemChunks(metadata map[string]string) (string, error) {
	count, found := metadata[metadataItemChunks]
	if !found {
		return metadata[metadataItems], nil
	}

	chunks, err := strconv.Atoi(count)
	if err != nil || chunks <= 0 || chunks > maxItemChunks {
		return "", fmt.Errorf("invalid items chunk count %q", count)
	}
	var sb strings.Builder
	for i := 0; i < chunks; i++ {
		chunk, found := metadata[chunkKey(i)]
		if !found {
			return "", fmt.Errorf("items chunk %d of %d missing", i, chunks)
		}
		sb.WriteString(chunk)
	}
	return sb.String(), nil
}

func chunkKey(i int) string {
	return fmt.Sprintf("%s_%d", metadataItems, i)
}
