// Command viewer follows one shop's orders the way a dashboard would: push
// first, polling while the stream is silent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/client"
	"github.com/TemirB/orderfeed/internal/config"
	"github.com/TemirB/orderfeed/internal/domain"
)

func main() {
	v, envErr := config.LoadViewer()

	server := flag.String("server", v.ServerURL, "order server base url (VIEWER_SERVER)")
	token := flag.String("token", v.Token, "identity token (VIEWER_TOKEN)")
	shop := flag.String("shop", v.ShopID, "shop id to follow (VIEWER_SHOP_ID)")
	top := flag.Int("top", 10, "number of newest orders to print on each update")
	debug := flag.Bool("debug", false, "development logging")
	flag.Parse()

	if *token == "" || *shop == "" {
		fmt.Fprintln(os.Stderr, "viewer:", envErr)
		flag.Usage()
		os.Exit(2)
	}
	if *server == "" {
		*server = "http://localhost:8081"
	}

	logger, err := zap.NewProduction()
	if *debug {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	h, err := client.NewHTTP(*server, nil)
	if err != nil {
		logger.Fatal("bad server url", zap.Error(err))
	}

	consumer := client.New(h, h, client.Options{
		ShopID: *shop,
		Token:  *token,
		Logger: logger,
		OnUpdate: func(orders []domain.Order) {
			printOrders(orders, *top)
		},
		OnState: func(s client.State) {
			fmt.Printf("[%s] state: %s\n", time.Now().Format(time.TimeOnly), s)
		},
		OnReconnect: func(d time.Duration) {
			fmt.Printf("[%s] reconnecting in %s\n", time.Now().Format(time.TimeOnly), d)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.Run(ctx); err != nil {
		if errors.Is(err, client.ErrDenied) {
			logger.Error("server refused the token for this shop", zap.String("shop_id", *shop))
			logger.Sync()
			os.Exit(1)
		}
		logger.Fatal("viewer stopped", zap.Error(err))
	}
}

func printOrders(orders []domain.Order, top int) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d orders\n", time.Now().Format(time.TimeOnly), len(orders))
	for i, o := range orders {
		if i == top {
			fmt.Fprintf(&b, "  ... %d more\n", len(orders)-top)
			break
		}
		fmt.Fprintf(&b, "  %-12s %-10s %s\n", o.ID, o.Status, o.CreatedAt.Format(time.DateTime))
	}
	fmt.Print(b.String())
}
