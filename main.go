package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/stripeshop/lib/myconfig"
	"github.com/MarcGrol/stripeshop/lib/myevents"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mymetrics"
	"github.com/MarcGrol/stripeshop/lib/mypublisher"
	"github.com/MarcGrol/stripeshop/lib/mypubsub"
	"github.com/MarcGrol/stripeshop/lib/myqueue"
	"github.com/MarcGrol/stripeshop/lib/myratelimit"
	"github.com/MarcGrol/stripeshop/lib/mystore"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/lib/myuuid"
	"github.com/MarcGrol/stripeshop/services/checkoutstripe"
	"github.com/MarcGrol/stripeshop/services/health"
	"github.com/MarcGrol/stripeshop/services/orderhistory"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/orders/orderevents"
	"github.com/MarcGrol/stripeshop/services/refunds"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
	"github.com/MarcGrol/stripeshop/services/stripewebhook"
)

const limiterSweepInterval = time.Minute

type registrar interface {
	RegisterEndpoints(c context.Context, router *mux.Router) error
}

func main() {
	c := context.Background()

	cfg, err := myconfig.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %s", err)
	}
	mylog.SetLevel(cfg.LogLevel)

	nower := mytime.RealNower{}
	uuider := myuuid.RealUUIDer{}

	router := mux.NewRouter()
	router.Use(mymetrics.Middleware)
	router.Handle("/metrics", mymetrics.Handler()).Methods("GET")

	orderStore, orderStoreCleanup, err := mystore.New[orders.Order](c)
	if err != nil {
		log.Fatalf("Error creating order store: %s", err)
	}
	defer orderStoreCleanup()

	outboxStore, outboxStoreCleanup, err := mystore.New[myevents.EventEnvelope](c)
	if err != nil {
		log.Fatalf("Error creating outbox store: %s", err)
	}
	defer outboxStoreCleanup()

	timelineStore, timelineStoreCleanup, err := mystore.New[orderhistory.Timeline](c)
	if err != nil {
		log.Fatalf("Error creating history store: %s", err)
	}
	defer timelineStoreCleanup()

	pubsub, pubsubCleanup, err := mypubsub.New(c)
	if err != nil {
		log.Fatalf("Error creating pubsub: %s", err)
	}
	defer pubsubCleanup()

	queue, queueCleanup, err := myqueue.New(c)
	if err != nil {
		log.Fatalf("Error creating queue: %s", err)
	}
	defer queueCleanup()

	publisher := mypublisher.New(c, outboxStore, pubsub, queue, nower)
	err = publisher.CreateTopic(c, orderevents.TopicName)
	if err != nil {
		log.Fatalf("Error creating topic %s: %s", orderevents.TopicName, err)
	}
	publisher.RegisterEndpoints(c, router)

	journal, journalCleanup, err := stripewebhook.NewJournal(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		log.Fatalf("Error opening webhook journal: %s", err)
	}
	defer journalCleanup()

	limiter := myratelimit.New(myratelimit.Config{
		PerMinute:      cfg.RateLimit.PerMinute,
		Burst:          cfg.RateLimit.Burst,
		IdleTimeout:    cfg.RateLimit.IdleTimeout,
		TrustedProxies: cfg.RateLimit.TrustedProxies,
	}, nower)
	limiter.Start(c, limiterSweepInterval)
	defer limiter.Close()

	stripeClient := stripeapi.NewClient(cfg.Stripe.SecretKey, cfg.Stripe.MaxNetworkRetries)
	orderService := orders.NewService(orders.NewLedger(orderStore), nower, publisher)

	services := []registrar{
		orders.NewWebService(orderService, uuider),
		stripewebhook.NewWebService(cfg.Stripe.WebhookSecret, nower, journal, orderService),
		refunds.NewWebService(uuider, refunds.NewPayer(stripeClient), orderService),
		checkoutstripe.NewWebService(checkoutstripe.NewPayer(stripeClient), orderService, limiter, cfg.ClientURL, cfg.DefaultCurrency),
		orderhistory.NewWebService(nower, pubsub, timelineStore, cfg.BaseURL),
		health.NewWebService(nower, journal, orderStore),
	}
	for _, s := range services {
		err = s.RegisterEndpoints(c, router)
		if err != nil {
			log.Fatalf("Error registering endpoints: %s", err)
		}
	}

	startWebServerBlocking(cfg.Port, router)
}

func startWebServerBlocking(port string, router *mux.Router) {
	log.Printf("Starting webserver on port %s (try http://localhost:%s)", port, port)
	err := http.ListenAndServe(fmt.Sprintf(":%s", port), router)
	if err != nil {
		log.Fatalf("Error starting webserver on port %s: %s", port, err)
	}
}
