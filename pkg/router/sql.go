package router

import "strings"

// tableListing returns the dialect's statement listing user tables.
func tableListing(driver string) string {
	switch driver {
	case "postgres", "pgx":
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	case "mysql":
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name"
	default:
		return "SELECT name AS table_name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	}
}

func tableCount(driver string) string {
	switch driver {
	case "postgres", "pgx":
		return "SELECT COUNT(*) AS table_count FROM information_schema.tables WHERE table_schema = 'public'"
	case "mysql":
		return "SELECT COUNT(*) AS table_count FROM information_schema.tables WHERE table_schema = DATABASE()"
	default:
		return "SELECT COUNT(*) AS table_count FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
	}
}

const departmentHeadcount = "SELECT d.department_name, COUNT(e.employee_id) AS employee_count " +
	"FROM departments d LEFT JOIN employees e ON d.department_id = e.department_id " +
	"GROUP BY d.department_id, d.department_name ORDER BY d.department_id"

// GenerateSQL maps a message to a canned statement for the embedded store.
func GenerateSQL(query string) string {
	return GenerateSQLFor("sqlite3", query)
}

// GenerateSQLFor maps a message to a canned statement against the demo
// schema. Counts and averages win over entity listings. Row limits use the
// Oracle FETCH FIRST form.
func GenerateSQLFor(driver, query string) string {
	q := strings.ToLower(query)
	has := func(words ...string) bool { return containsAny(q, words) }

	switch {
	case has("count", "how many"):
		switch {
		case has("employee", "staff") && has("department", "dept"):
			return departmentHeadcount
		case has("employee", "staff"):
			return "SELECT COUNT(*) AS employee_count FROM employees"
		case has("department"):
			return "SELECT COUNT(*) AS department_count FROM departments"
		case has("order"):
			return "SELECT COUNT(*) AS order_count FROM orders"
		case has("product"):
			return "SELECT COUNT(*) AS product_count FROM products"
		default:
			return tableCount(driver)
		}

	case has("average", "avg", "mean", "statistics") && has("salary", "order", "amount", "price", "product"):
		switch {
		case has("salary"):
			return "SELECT AVG(salary) AS average_salary, MIN(salary) AS min_salary, MAX(salary) AS max_salary FROM employees"
		case has("order", "amount"):
			return "SELECT AVG(total_amount) AS average_order, MIN(total_amount) AS min_order, MAX(total_amount) AS max_order FROM orders"
		default:
			return "SELECT AVG(unit_price) AS average_price, MIN(unit_price) AS min_price, MAX(unit_price) AS max_price FROM products"
		}

	case has("employee", "staff", "worker"):
		switch {
		case has("department"):
			return "SELECT e.employee_id, e.first_name, e.last_name, e.job_id, d.department_name " +
				"FROM employees e LEFT JOIN departments d ON e.department_id = d.department_id " +
				"ORDER BY e.employee_id FETCH FIRST 20 ROWS ONLY"
		case has("salary", "pay"):
			return "SELECT employee_id, first_name, last_name, salary, hire_date FROM employees " +
				"ORDER BY salary DESC FETCH FIRST 15 ROWS ONLY"
		case has("recent", "new"):
			return "SELECT employee_id, first_name, last_name, hire_date FROM employees " +
				"WHERE hire_date >= " + oneYearAgo(driver) + " ORDER BY hire_date DESC FETCH FIRST 10 ROWS ONLY"
		default:
			return "SELECT employee_id, first_name, last_name, email, department_id, hire_date FROM employees " +
				"ORDER BY employee_id FETCH FIRST 15 ROWS ONLY"
		}

	case has("department", "dept"):
		return "SELECT department_id, department_name, manager_id, location_id FROM departments ORDER BY department_id"

	case has("order", "sale"):
		switch {
		case has("amount", "value"):
			return "SELECT order_id, customer_id, order_date, total_amount FROM orders " +
				"ORDER BY total_amount DESC FETCH FIRST 15 ROWS ONLY"
		case has("recent"):
			return "SELECT order_id, customer_id, order_date, order_status, total_amount FROM orders " +
				"WHERE order_date >= " + thirtyDaysAgo(driver) + " ORDER BY order_date DESC FETCH FIRST 10 ROWS ONLY"
		default:
			return "SELECT order_id, customer_id, order_date, total_amount, order_status FROM orders " +
				"ORDER BY order_date DESC FETCH FIRST 20 ROWS ONLY"
		}

	case has("customer", "client"):
		return "SELECT customer_id, COUNT(order_id) AS order_count, SUM(total_amount) AS total_spent " +
			"FROM orders GROUP BY customer_id ORDER BY total_spent DESC FETCH FIRST 15 ROWS ONLY"
	}

	return tableListing(driver)
}

func oneYearAgo(driver string) string {
	switch driver {
	case "postgres", "pgx":
		return "CURRENT_DATE - INTERVAL '1 year'"
	case "mysql":
		return "DATE_SUB(CURDATE(), INTERVAL 1 YEAR)"
	default:
		return "DATE('now', '-1 year')"
	}
}

func thirtyDaysAgo(driver string) string {
	switch driver {
	case "postgres", "pgx":
		return "CURRENT_DATE - INTERVAL '30 days'"
	case "mysql":
		return "DATE_SUB(CURDATE(), INTERVAL 30 DAY)"
	default:
		return "DATE('now', '-30 days')"
	}
}
