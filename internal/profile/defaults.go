package profile

import "fmt"

// DefaultTree returns the seeded mapping tree for a new profile of the
// given adapter family. The shapes mirror the stock profiles shipped with
// the original plugin, trimmed to the adapters this engine carries.
func DefaultTree(profileType string) (*Tree, error) {
	switch profileType {
	case "customers":
		return defaultCustomerTree(), nil
	case "orders":
		return defaultOrderTree(), nil
	default:
		return nil, fmt.Errorf("no default tree for profile type %q", profileType)
	}
}

func defaultCustomerTree() *Tree {
	t := NewTree()
	mustAppend(t, RootID, &Node{ID: "customers", Name: "customers", Kind: KindNode, OrderIndex: 0})
	mustAppend(t, "customers", &Node{
		ID: "customer", Name: "customer", Kind: KindIteration, OrderIndex: 0,
		AdapterName: "customer",
	})
	mustAppend(t, "customer", &Node{ID: "customer-password", Name: "password", Kind: KindAttribute, OrderIndex: 0, SourceField: "password"})
	mustAppend(t, "customer", &Node{ID: "customer-id", Name: "id", Kind: KindLeaf, OrderIndex: 1, SourceField: "id"})
	mustAppend(t, "customer", &Node{ID: "customer-email", Name: "email", Kind: KindLeaf, OrderIndex: 2, SourceField: "email"})

	mustAppend(t, "customer", &Node{ID: "billing-info", Name: "billing_info", Kind: KindNode, OrderIndex: 3})
	mustAppend(t, "billing-info", &Node{ID: "billing-first", Name: "first_name", Kind: KindLeaf, OrderIndex: 0, SourceField: "billingFirstname"})
	mustAppend(t, "billing-info", &Node{ID: "billing-last", Name: "last_name", Kind: KindLeaf, OrderIndex: 1, SourceField: "billingLastname"})

	mustAppend(t, "customer", &Node{ID: "shipping-info", Name: "shipping_info", Kind: KindNode, OrderIndex: 4})
	mustAppend(t, "shipping-info", &Node{ID: "shipping-first", Name: "first_name", Kind: KindLeaf, OrderIndex: 0, SourceField: "shippingFirstname"})
	mustAppend(t, "shipping-info", &Node{ID: "shipping-last", Name: "last_name", Kind: KindLeaf, OrderIndex: 1, SourceField: "shippingLastname"})

	mustAppend(t, "customer", &Node{ID: "customer-encoder", Name: "encoder", Kind: KindLeaf, OrderIndex: 5, SourceField: "encoder"})
	return t
}

func defaultOrderTree() *Tree {
	t := NewTree()
	mustAppend(t, RootID, &Node{ID: "orders", Name: "orders", Kind: KindNode, OrderIndex: 0})
	mustAppend(t, "orders", &Node{
		ID: "order", Name: "order", Kind: KindIteration, OrderIndex: 0,
		AdapterName: "order",
	})
	mustAppend(t, "order", &Node{ID: "order-id", Name: "id", Kind: KindLeaf, OrderIndex: 0, SourceField: "id"})
	mustAppend(t, "order", &Node{ID: "order-number", Name: "order_number", Kind: KindLeaf, OrderIndex: 1, SourceField: "orderNumber"})
	mustAppend(t, "order", &Node{ID: "order-customer", Name: "customer_id", Kind: KindLeaf, OrderIndex: 2, SourceField: "customerId"})
	mustAppend(t, "order", &Node{ID: "order-total", Name: "invoice_amount", Kind: KindLeaf, OrderIndex: 3, SourceField: "invoiceAmount"})
	mustAppend(t, "order", &Node{ID: "order-status", Name: "status", Kind: KindLeaf, OrderIndex: 4, SourceField: "status"})
	return t
}

func mustAppend(t *Tree, parentID string, n *Node) {
	if _, err := t.Append(parentID, n); err != nil {
		panic(err)
	}
}
