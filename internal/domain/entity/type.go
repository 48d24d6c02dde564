package entity

import "fmt"

// Type имя коллекции, которую синхронизирует клиент
type Type string

const (
	Users               Type = "users"
	Products            Type = "products"
	Drivers             Type = "drivers"
	Regions             Type = "regions"
	RegionConfigs       Type = "region_configs"
	Shipments           Type = "shipments"
	ShipmentProducts    Type = "shipment_products"
	ProductPrices       Type = "product_prices"
	DeductionPrices     Type = "deduction_prices"
	Notifications       Type = "notifications"
	Installments        Type = "installments"
	InstallmentPayments Type = "installment_payments"
	CompanySettings     Type = "company_settings"
)

const (
	// DefaultIDField ключ всех типов, кроме настроек компании
	DefaultIDField = "id"
	// TenantField компания-владелец записи
	TenantField = "company_id"
)

// Descriptor как синхронизация адресует записи типа
type Descriptor struct {
	Type         Type
	IDField      string
	TenantScoped bool
}

var descriptors = []Descriptor{
	{Type: Users, IDField: DefaultIDField, TenantScoped: true},
	{Type: Products, IDField: DefaultIDField, TenantScoped: true},
	{Type: Drivers, IDField: DefaultIDField, TenantScoped: true},
	{Type: Regions, IDField: DefaultIDField, TenantScoped: true},
	{Type: RegionConfigs, IDField: DefaultIDField, TenantScoped: true},
	{Type: Shipments, IDField: DefaultIDField, TenantScoped: true},
	{Type: ShipmentProducts, IDField: DefaultIDField},
	{Type: ProductPrices, IDField: DefaultIDField, TenantScoped: true},
	{Type: DeductionPrices, IDField: DefaultIDField, TenantScoped: true},
	{Type: Notifications, IDField: DefaultIDField, TenantScoped: true},
	{Type: Installments, IDField: DefaultIDField},
	{Type: InstallmentPayments, IDField: DefaultIDField},
	{Type: CompanySettings, IDField: TenantField, TenantScoped: true},
}

var byType = func() map[Type]Descriptor {
	m := make(map[Type]Descriptor, len(descriptors))
	for _, d := range descriptors {
		m[d.Type] = d
	}
	return m
}()

// All все известные типы в стабильном порядке
func All() []Type {
	types := make([]Type, len(descriptors))
	for i, d := range descriptors {
		types[i] = d.Type
	}
	return types
}

// Lookup описание типа t
func Lookup(t Type) (Descriptor, bool) {
	d, ok := byType[t]
	return d, ok
}

// Parse проверяет имя типа из конфигурации, CLI или запроса
func Parse(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

func (t Type) Valid() bool {
	_, ok := byType[t]
	return ok
}

// IDField имя ключевого поля типа
func (t Type) IDField() string {
	if d, ok := byType[t]; ok {
		return d.IDField
	}
	return DefaultIDField
}

func (t Type) String() string {
	return string(t)
}
