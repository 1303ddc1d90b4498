package demo

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// TimestampLayout matches the layout of the public Olist CSV exports.
const TimestampLayout = "2006-01-02 15:04:05"

type Options struct {
	Seed      int64
	Orders    int
	Customers int
	Products  int
	Start     time.Time
	End       time.Time
}

func DefaultOptions() Options {
	return Options{
		Seed:      42,
		Orders:    2000,
		Customers: 600,
		Products:  150,
		Start:     time.Date(2016, time.September, 4, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2018, time.October, 17, 0, 0, 0, 0, time.UTC),
	}
}

type Dataset struct {
	Orders    []Order
	Items     []OrderItem
	Products  []Product
	Customers []Customer
	Payments  []Payment
	Reviews   []Review
}

type Generator struct {
	rnd  *rand.Rand
	opts Options
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.Orders <= 0 || opts.Customers <= 0 || opts.Products <= 0 {
		return nil, fmt.Errorf("orders, customers and products must be > 0")
	}
	if !opts.End.After(opts.Start) {
		return nil, fmt.Errorf("end must be after start")
	}
	return &Generator{rnd: rand.New(rand.NewSource(opts.Seed)), opts: opts}, nil
}

func (g *Generator) Generate() Dataset {
	var ds Dataset

	for i := 1; i <= g.opts.Customers; i++ {
		place := pickOne(g.rnd, places)
		ds.Customers = append(ds.Customers, Customer{
			CustomerID:       fmt.Sprintf("c%06d", i),
			CustomerUniqueID: fmt.Sprintf("u%06d", g.rnd.Intn(g.opts.Customers)+1),
			ZipCodePrefix:    fmt.Sprintf("%05d", 1000+g.rnd.Intn(98000)),
			City:             place.city,
			State:            place.state,
		})
	}

	for i := 1; i <= g.opts.Products; i++ {
		ds.Products = append(ds.Products, Product{
			ProductID:    fmt.Sprintf("p%05d", i),
			CategoryName: pickOne(g.rnd, categories),
			WeightGrams:  int64(100 + g.rnd.Intn(9900)),
		})
	}

	span := g.opts.End.Sub(g.opts.Start)
	for i := 1; i <= g.opts.Orders; i++ {
		orderID := fmt.Sprintf("o%07d", i)
		purchased := g.opts.Start.Add(time.Duration(g.rnd.Int63n(int64(span)))).Truncate(time.Second)
		status := g.pickStatus()
		order := Order{
			OrderID:               orderID,
			CustomerID:            ds.Customers[g.rnd.Intn(len(ds.Customers))].CustomerID,
			Status:                status,
			PurchaseTimestamp:     purchased.Format(TimestampLayout),
			ApprovedAt:            purchased.Add(time.Duration(10+g.rnd.Intn(600)) * time.Minute).Format(TimestampLayout),
			EstimatedDeliveryDate: purchased.AddDate(0, 0, 15+g.rnd.Intn(20)).Format("2006-01-02") + " 00:00:00",
		}
		if status == "delivered" {
			order.DeliveredCustomerDate = purchased.Add(time.Duration(3+g.rnd.Intn(25)) * 24 * time.Hour).Format(TimestampLayout)
		}
		ds.Orders = append(ds.Orders, order)

		itemCount := 1 + g.rnd.Intn(3)
		total := 0.0
		for seq := 1; seq <= itemCount; seq++ {
			product := ds.Products[g.rnd.Intn(len(ds.Products))]
			price := round2(8 + g.rnd.Float64()*g.priceCeiling(product.CategoryName))
			freight := round2(5 + g.rnd.Float64()*35)
			total += price + freight
			ds.Items = append(ds.Items, OrderItem{
				OrderID:           orderID,
				OrderItemID:       int64(seq),
				ProductID:         product.ProductID,
				SellerID:          fmt.Sprintf("s%04d", g.rnd.Intn(200)+1),
				ShippingLimitDate: purchased.AddDate(0, 0, 6).Format(TimestampLayout),
				Price:             price,
				FreightValue:      freight,
			})
		}

		paymentType := g.pickPaymentType()
		installments := int64(1)
		if paymentType == "credit_card" {
			installments = int64(1 + g.rnd.Intn(10))
		}
		ds.Payments = append(ds.Payments, Payment{
			OrderID:      orderID,
			Sequential:   1,
			Type:         paymentType,
			Installments: installments,
			Value:        round2(total),
		})

		if status != "canceled" {
			ds.Reviews = append(ds.Reviews, Review{
				ReviewID:     fmt.Sprintf("r%07d", i),
				OrderID:      orderID,
				Score:        g.pickScore(),
				CreationDate: purchased.AddDate(0, 0, 20).Format("2006-01-02") + " 00:00:00",
			})
		}
	}
	return ds
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 92:
		return "delivered"
	case p < 96:
		return "shipped"
	case p < 98:
		return "invoiced"
	default:
		return "canceled"
	}
}

func (g *Generator) pickPaymentType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 74:
		return "credit_card"
	case p < 93:
		return "boleto"
	case p < 98:
		return "voucher"
	default:
		return "debit_card"
	}
}

func (g *Generator) pickScore() float64 {
	p := g.rnd.Intn(100)
	switch {
	case p < 58:
		return 5
	case p < 77:
		return 4
	case p < 85:
		return 3
	case p < 88:
		return 2
	default:
		return 1
	}
}

func (g *Generator) priceCeiling(category string) float64 {
	switch category {
	case "informatica_acessorios", "telefonia", "relogios_presentes":
		return 600
	case "moveis_decoracao", "automotivo":
		return 350
	default:
		return 180
	}
}

type place struct {
	city  string
	state string
}

var places = []place{
	{"sao paulo", "SP"}, {"campinas", "SP"}, {"guarulhos", "SP"},
	{"rio de janeiro", "RJ"}, {"niteroi", "RJ"},
	{"belo horizonte", "MG"}, {"porto alegre", "RS"}, {"curitiba", "PR"},
	{"florianopolis", "SC"}, {"salvador", "BA"}, {"brasilia", "DF"},
	{"goiania", "GO"}, {"vitoria", "ES"},
}

var categories = []string{
	"beleza_saude", "cama_mesa_banho", "esporte_lazer", "informatica_acessorios",
	"moveis_decoracao", "utilidades_domesticas", "relogios_presentes", "telefonia",
	"brinquedos", "automotivo",
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne[T any](r *rand.Rand, values []T) T {
	return values[r.Intn(len(values))]
}
