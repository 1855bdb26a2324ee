package adb

import (
	"context"
	"database/sql"
	"fmt"
)

// Demo tables, created only on the embedded sqlite3 store.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS departments (
		department_id INTEGER PRIMARY KEY,
		department_name TEXT NOT NULL,
		manager_id INTEGER,
		location_id INTEGER,
		created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		modified_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (manager_id) REFERENCES employees(employee_id)
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		employee_id INTEGER PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT UNIQUE,
		phone_number TEXT,
		hire_date DATE,
		job_id TEXT,
		salary REAL,
		commission_pct REAL,
		manager_id INTEGER,
		department_id INTEGER,
		created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		modified_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (manager_id) REFERENCES employees(employee_id),
		FOREIGN KEY (department_id) REFERENCES departments(department_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		order_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		ship_date TIMESTAMP,
		order_status TEXT CHECK (order_status IN ('PENDING', 'PROCESSING', 'SHIPPED', 'DELIVERED', 'CANCELLED')),
		total_amount REAL,
		discount_amount REAL DEFAULT 0,
		tax_amount REAL DEFAULT 0,
		created_by INTEGER,
		created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		modified_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (created_by) REFERENCES employees(employee_id)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		product_id INTEGER PRIMARY KEY,
		product_name TEXT NOT NULL,
		product_code TEXT UNIQUE,
		category_id INTEGER,
		unit_price REAL,
		units_in_stock INTEGER DEFAULT 0,
		discontinued INTEGER DEFAULT 0,
		created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		modified_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		audit_id INTEGER PRIMARY KEY AUTOINCREMENT,
		table_name TEXT NOT NULL,
		operation TEXT NOT NULL,
		old_values TEXT,
		new_values TEXT,
		user_name TEXT,
		session_id TEXT,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		ip_address TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_department ON employees(department_id)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_manager ON employees(manager_id)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_email ON employees(email)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(order_status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(order_date)`,
	`CREATE INDEX IF NOT EXISTS idx_products_code ON products(product_code)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_table ON audit_log(table_name, timestamp)`,
}

// DemoTables names the seeded tables.
var DemoTables = []string{"departments", "employees", "orders", "products", "audit_log"}

type seedSet struct {
	insert string
	rows   [][]interface{}
}

var seedData = []seedSet{
	{
		insert: `INSERT INTO departments (department_id, department_name, location_id) VALUES (?, ?, ?)`,
		rows: [][]interface{}{
			{10, "Administration", 1700},
			{20, "Marketing", 1800},
			{30, "Purchasing", 1700},
			{40, "Human Resources", 2400},
			{50, "IT", 1400},
			{60, "Finance", 1700},
		},
	},
	{
		insert: `INSERT INTO employees (employee_id, first_name, last_name, email, phone_number, hire_date, job_id, salary, manager_id, department_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rows: [][]interface{}{
			{100, "Steven", "King", "steven.king@company.com", "515-123-4567", "2020-01-01", "CEO", 24000, nil, 10},
			{101, "Neena", "Kochhar", "neena.kochhar@company.com", "515-123-4568", "2020-02-01", "VP", 17000, 100, 10},
			{102, "Lex", "De Haan", "lex.dehaan@company.com", "515-123-4569", "2020-03-01", "VP", 17000, 100, 10},
			{103, "Alexander", "Hunold", "alexander.hunold@company.com", "590-423-4567", "2020-04-01", "PROG", 9000, 102, 50},
			{104, "Bruce", "Ernst", "bruce.ernst@company.com", "590-423-4568", "2020-05-01", "PROG", 6000, 103, 50},
			{105, "David", "Austin", "david.austin@company.com", "590-423-4569", "2020-06-01", "PROG", 4800, 103, 50},
		},
	},
	{
		insert: `INSERT INTO products (product_id, product_name, product_code, category_id, unit_price, units_in_stock, discontinued)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rows: [][]interface{}{
			{1, "Laptop Computer", "LAP-001", 1, 1200.00, 50, 0},
			{2, "Desktop Computer", "DES-001", 1, 800.00, 30, 0},
			{3, "Wireless Mouse", "MOU-001", 2, 25.00, 100, 0},
			{4, "Keyboard", "KEY-001", 2, 45.00, 75, 0},
			{5, `Monitor 24"`, "MON-001", 1, 300.00, 25, 0},
		},
	},
	{
		insert: `INSERT INTO orders (order_id, customer_id, order_date, ship_date, order_status, total_amount, discount_amount, tax_amount, created_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rows: [][]interface{}{
			{1001, 1, "2024-01-15", "2024-01-18", "DELIVERED", 1245.00, 0, 124.50, 100},
			{1002, 2, "2024-01-16", "2024-01-19", "DELIVERED", 870.00, 50, 87.00, 101},
			{1003, 3, "2024-01-17", nil, "PROCESSING", 325.00, 0, 32.50, 102},
			{1004, 1, "2024-01-18", nil, "PENDING", 1500.00, 100, 150.00, 100},
		},
	},
}

// initSchema creates the demo tables and indexes.
func initSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// seed inserts the sample rows once; a populated departments table means the
// database was seeded before.
func seed(ctx context.Context, db *sql.DB) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM departments").Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check seed state: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	for _, set := range seedData {
		stmt, err := tx.PrepareContext(ctx, set.insert)
		if err != nil {
			return false, fmt.Errorf("failed to prepare seed insert: %w", err)
		}
		for _, row := range set.rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				stmt.Close()
				return false, fmt.Errorf("failed to insert seed row: %w", err)
			}
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
