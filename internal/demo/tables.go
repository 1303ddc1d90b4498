package demo

import "strconv"

type Order struct {
	OrderID               string `parquet:"order_id"`
	CustomerID            string `parquet:"customer_id"`
	Status                string `parquet:"order_status"`
	PurchaseTimestamp     string `parquet:"order_purchase_timestamp"`
	ApprovedAt            string `parquet:"order_approved_at"`
	DeliveredCustomerDate string `parquet:"order_delivered_customer_date"`
	EstimatedDeliveryDate string `parquet:"order_estimated_delivery_date"`
}

func (Order) table() string { return "olist_orders_dataset" }

func (Order) header() []string {
	return []string{"order_id", "customer_id", "order_status", "order_purchase_timestamp", "order_approved_at", "order_delivered_customer_date", "order_estimated_delivery_date"}
}

func (o Order) values() []any {
	return []any{o.OrderID, o.CustomerID, o.Status, o.PurchaseTimestamp, o.ApprovedAt, o.DeliveredCustomerDate, o.EstimatedDeliveryDate}
}

type OrderItem struct {
	OrderID           string  `parquet:"order_id"`
	OrderItemID       int64   `parquet:"order_item_id"`
	ProductID         string  `parquet:"product_id"`
	SellerID          string  `parquet:"seller_id"`
	ShippingLimitDate string  `parquet:"shipping_limit_date"`
	Price             float64 `parquet:"price"`
	FreightValue      float64 `parquet:"freight_value"`
}

func (OrderItem) table() string { return "olist_order_items_dataset" }

func (OrderItem) header() []string {
	return []string{"order_id", "order_item_id", "product_id", "seller_id", "shipping_limit_date", "price", "freight_value"}
}

func (i OrderItem) values() []any {
	return []any{i.OrderID, i.OrderItemID, i.ProductID, i.SellerID, i.ShippingLimitDate, i.Price, i.FreightValue}
}

type Product struct {
	ProductID    string `parquet:"product_id"`
	CategoryName string `parquet:"product_category_name"`
	WeightGrams  int64  `parquet:"product_weight_g"`
}

func (Product) table() string { return "olist_products_dataset" }

func (Product) header() []string {
	return []string{"product_id", "product_category_name", "product_weight_g"}
}

func (p Product) values() []any {
	return []any{p.ProductID, p.CategoryName, p.WeightGrams}
}

type Customer struct {
	CustomerID       string `parquet:"customer_id"`
	CustomerUniqueID string `parquet:"customer_unique_id"`
	ZipCodePrefix    string `parquet:"customer_zip_code_prefix"`
	City             string `parquet:"customer_city"`
	State            string `parquet:"customer_state"`
}

func (Customer) table() string { return "olist_customers_dataset" }

func (Customer) header() []string {
	return []string{"customer_id", "customer_unique_id", "customer_zip_code_prefix", "customer_city", "customer_state"}
}

func (c Customer) values() []any {
	return []any{c.CustomerID, c.CustomerUniqueID, c.ZipCodePrefix, c.City, c.State}
}

type Payment struct {
	OrderID      string  `parquet:"order_id"`
	Sequential   int64   `parquet:"payment_sequential"`
	Type         string  `parquet:"payment_type"`
	Installments int64   `parquet:"payment_installments"`
	Value        float64 `parquet:"payment_value"`
}

func (Payment) table() string { return "olist_order_payments_dataset" }

func (Payment) header() []string {
	return []string{"order_id", "payment_sequential", "payment_type", "payment_installments", "payment_value"}
}

func (p Payment) values() []any {
	return []any{p.OrderID, p.Sequential, p.Type, p.Installments, p.Value}
}

type Review struct {
	ReviewID     string  `parquet:"review_id"`
	OrderID      string  `parquet:"order_id"`
	Score        float64 `parquet:"review_score"`
	CreationDate string  `parquet:"review_creation_date"`
}

func (Review) table() string { return "olist_order_reviews_dataset" }

func (Review) header() []string {
	return []string{"review_id", "order_id", "review_score", "review_creation_date"}
}

func (r Review) values() []any {
	return []any{r.ReviewID, r.OrderID, r.Score, r.CreationDate}
}

// fields renders a row for CSV output.
func fields(r record) []string {
	values := r.values()
	out := make([]string, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case string:
			out[i] = typed
		case int64:
			out[i] = strconv.FormatInt(typed, 10)
		case float64:
			out[i] = strconv.FormatFloat(typed, 'f', -1, 64)
		}
	}
	return out
}
