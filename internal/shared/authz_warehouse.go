package shared

// Warehouse order permissions.
const (
	PermWarehouseOrderView    = "warehouse.order.view"
	PermWarehouseOrderCreate  = "warehouse.order.create"
	PermWarehouseOrderEdit    = "warehouse.order.edit"
	PermWarehouseOrderReceive = "warehouse.order.receive"
	PermWarehouseOrderCancel  = "warehouse.order.cancel"
	PermWarehouseOrderRepair  = "warehouse.order.repair"

	PermWarehouseAuditView = "warehouse.audit.view"
)

// WarehouseScopes lists all permissions related to warehouse orders.
func WarehouseScopes() []string {
	return []string{
		PermWarehouseOrderView,
		PermWarehouseOrderCreate,
		PermWarehouseOrderEdit,
		PermWarehouseOrderReceive,
		PermWarehouseOrderCancel,
		PermWarehouseOrderRepair,
		PermWarehouseAuditView,
	}
}

// RoleGrants maps each role to the permissions it holds.
func RoleGrants() map[Role][]string {
	return map[Role][]string{
		RoleAdmin: WarehouseScopes(),
		RoleManager: {
			PermWarehouseOrderView,
			PermWarehouseOrderCreate,
			PermWarehouseOrderEdit,
			PermWarehouseOrderReceive,
			PermWarehouseOrderCancel,
			PermWarehouseAuditView,
		},
		RoleEmployee: {
			PermWarehouseOrderView,
			PermWarehouseOrderReceive,
		},
		RoleClient: {
			PermWarehouseOrderView,
			PermWarehouseOrderCreate,
			PermWarehouseOrderEdit,
		},
	}
}
