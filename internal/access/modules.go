package access

// Well-known module codes. The modules table is the source of truth; these
// constants exist so route guards and seeds agree on spelling.
const (
	ModuleAdmin        = "admin"
	ModulePatients     = "patients"
	ModuleAppointments = "appointments"
	ModuleInvoices     = "invoices"
	ModuleReports      = "reports"
)
