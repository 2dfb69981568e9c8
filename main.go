package main

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/rise-and-shine/aggregate/cfgloader"
	"github.com/rise-and-shine/aggregate/logger"
	"github.com/rise-and-shine/aggregate/mask"
	"github.com/rise-and-shine/aggregate/meta"
	"github.com/rise-and-shine/aggregate/pagination"
	"github.com/rise-and-shine/aggregate/pg"
	"github.com/rise-and-shine/aggregate/repo"
	"github.com/rise-and-shine/aggregate/schema"
	"github.com/rise-and-shine/aggregate/sorter"
	"github.com/rise-and-shine/aggregate/tracing"
)

type Config struct {
	Logger  logger.Config  `yaml:"logger"`
	Tracing tracing.Config `yaml:"tracing"`
	PG      pg.Config      `yaml:"pg"`
}

type Order struct {
	schema.BaseEntity `rel:"table:orders"`

	ID        int64     `rel:"id,pk,autoincrement"`
	Ref       string    `rel:"ref"`
	Status    string    `rel:"status"`
	Address   Address   `rel:"embedded:addr_"`
	Payment   *Payment  `rel:"payment"`
	Items     []Item    `rel:"items"`
	CreatedAt time.Time `rel:"created_at"`
}

type Address struct {
	City   string `rel:"city"`
	Street string `rel:"street"`
}

type Payment struct {
	ID     string `rel:"id,pk,genuuid"`
	Method string `rel:"method"`
	Amount int64  `rel:"amount"`
}

type Item struct {
	ID       int64  `rel:"id,pk,autoincrement"`
	Product  string `rel:"product"`
	Quantity int    `rel:"quantity"`
}

type OrderFilters struct {
	Status string
}

func main() {
	cfg := cfgloader.MustLoad[Config]()

	logger.SetGlobal(cfg.Logger)
	logger.With("config", mask.StructToOrdMap(cfg)).Info("loaded config")

	meta.SetServiceInfo("aggregate-demo", "dev")

	shutdownTracer, err := tracing.InitGlobalTracer(cfg.Tracing)
	if err != nil {
		logger.Fatalx(err)
	}
	defer func() { _ = shutdownTracer() }()

	db, err := pg.NewBunDB(cfg.PG)
	if err != nil {
		logger.Fatalx(err)
	}

	orders, err := repo.NewPgAggregateRepoBuilder[Order, OrderFilters](db, schema.NewRegistry()).
		WithNotFoundCode("ORDER_NOT_FOUND").
		WithConflictCodes(map[string]string{"orders_ref_key": "ORDER_REF_ALREADY_EXISTS"}).
		WithFilterFunc(func(q *bun.SelectQuery, f OrderFilters) *bun.SelectQuery {
			if f.Status != "" {
				q = q.Where("status = ?", f.Status)
			}
			return q
		}).
		Build()
	if err != nil {
		logger.Fatalx(err)
	}

	ctx := context.Background()

	order := &Order{
		Ref:     "ord-1001",
		Status:  "placed",
		Address: Address{City: "Tashkent", Street: "Amir Temur 1"},
		Payment: &Payment{Method: "card", Amount: 125_000},
		Items: []Item{
			{Product: "espresso beans", Quantity: 2},
			{Product: "filter paper", Quantity: 1},
		},
		CreatedAt: time.Now(),
	}

	if err := orders.Save(ctx, order); err != nil {
		logger.Fatalx(err)
	}
	logger.With("order_id", order.ID).Info("order saved")

	loaded, err := orders.FindByID(ctx, order.ID)
	if err != nil {
		logger.Fatalx(err)
	}
	logger.With("items", len(loaded.Items)).Info("order loaded")

	loaded.Status = "shipped"
	loaded.Items = append(loaded.Items, Item{Product: "grinder", Quantity: 1})
	if err := orders.Save(ctx, loaded); err != nil {
		logger.Fatalx(err)
	}

	page, err := orders.List(ctx,
		OrderFilters{Status: "shipped"},
		pagination.Request{PageNumber: 1, PageSize: 10},
		sorter.Make(sorter.Opt{F: "created_at", D: sorter.Desc}),
	)
	if err != nil {
		logger.Fatalx(err)
	}
	logger.With("total", page.TotalCount).Info("shipped orders listed")

	if err := orders.DeleteByID(ctx, order.ID); err != nil {
		logger.Fatalx(err)
	}
	logger.Info("order deleted")
}
