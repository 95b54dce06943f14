package migrate

// Steps returns the CRM schema changes made after the baseline, oldest
// first. Append only; never reorder or remove an entry.
func Steps() []Step {
	return []Step{
		AddColumn{Table: "customers", Column: "email", Type: "TEXT"},
		AddColumn{Table: "customers", Column: "gst_number", Type: "TEXT"},
		AddColumn{Table: "products", Column: "hsn_code", Type: "TEXT"},
		AddColumn{Table: "products", Column: "stock_quantity", Type: "INTEGER NOT NULL", Default: "0"},
		AddColumn{Table: "invoices", Column: "discount_percent", Type: "REAL NOT NULL", Default: "0"},
		AddColumn{Table: "invoices", Column: "notes", Type: "TEXT"},
		AddTable{Table: "payments", Columns: []string{
			"id INTEGER PRIMARY KEY AUTOINCREMENT",
			"invoice_id INTEGER NOT NULL REFERENCES invoices(id) ON DELETE CASCADE",
			"amount REAL NOT NULL",
			"method TEXT NOT NULL DEFAULT 'cash'",
			"paid_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP",
		}},
		AddIndex{Index: "idx_payments_invoice", Table: "payments", Columns: []string{"invoice_id"}},
		AddIndex{Index: "idx_invoices_customer", Table: "invoices", Columns: []string{"customer_id"}},
	}
}
