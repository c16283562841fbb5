package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// Catalog
	&Product{},
	&Collection{},
	&CollectionItem{},
	// Inventory
	&InventoryRecord{},
	// Cart
	&Cart{},
	&CartItem{},
	// Discount
	&Discount{},
	&DiscountRedemption{},
	// Order
	&Order{},
	&OrderItem{},
}
