package rbac

// Role is the coarse role carried by every authenticated user.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleSales     Role = "sales"
	RoleWarehouse Role = "warehouse"
	RoleViewer    Role = "viewer"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleManager, RoleSales, RoleWarehouse, RoleViewer}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Capability names a guarded operation.
type Capability string

const (
	SalesOrderView       Capability = "sales.order.view"
	SalesOrderCreate     Capability = "sales.order.create"
	SalesOrderTransition Capability = "sales.order.transition"
	SalesOrderDelete     Capability = "sales.order.delete"

	PurchaseOrderView    Capability = "purchase.order.view"
	PurchaseOrderCreate  Capability = "purchase.order.create"
	PurchaseOrderEdit    Capability = "purchase.order.edit"
	PurchaseOrderReceive Capability = "purchase.order.receive"
	PurchaseOrderDelete  Capability = "purchase.order.delete"

	InventoryView   Capability = "inventory.view"
	InventoryAdjust Capability = "inventory.adjust"

	MasterDataView Capability = "masterdata.view"
	MasterDataEdit Capability = "masterdata.edit"
	CustomersEdit  Capability = "customers.edit"
	LeadsEdit      Capability = "leads.edit"
	WarehousesEdit Capability = "warehouses.edit"
	SuppliersEdit  Capability = "suppliers.edit"

	UsersManage Capability = "users.manage"
)

var (
	anyRole        = []Role{RoleAdmin, RoleManager, RoleSales, RoleWarehouse, RoleViewer}
	salesTier      = []Role{RoleAdmin, RoleManager, RoleSales}
	warehouseTier  = []Role{RoleAdmin, RoleManager, RoleWarehouse}
	managementTier = []Role{RoleAdmin, RoleManager}
)

// policy is the single (capability, role) table consulted by Authorize.
var policy = map[Capability][]Role{
	SalesOrderView:       anyRole,
	SalesOrderCreate:     salesTier,
	SalesOrderTransition: {RoleAdmin, RoleManager, RoleSales, RoleWarehouse},
	SalesOrderDelete:     salesTier,

	PurchaseOrderView:    anyRole,
	PurchaseOrderCreate:  warehouseTier,
	PurchaseOrderEdit:    warehouseTier,
	PurchaseOrderReceive: warehouseTier,
	PurchaseOrderDelete:  warehouseTier,

	InventoryView:   anyRole,
	InventoryAdjust: warehouseTier,

	MasterDataView: anyRole,
	MasterDataEdit: managementTier,
	CustomersEdit:  salesTier,
	LeadsEdit:      salesTier,
	WarehousesEdit: warehouseTier,
	SuppliersEdit:  warehouseTier,

	UsersManage: {RoleAdmin},
}
