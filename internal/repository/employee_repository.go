package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/unclebandit/phishdrill-backend/internal/model"
)

// EmployeeStore is the allowlist of addresses a campaign may target.
type EmployeeStore interface {
	Upsert(ctx context.Context, employees []model.Employee) error
	Lookup(ctx context.Context, emails []string) ([]model.Employee, error)
	ListAll(ctx context.Context) ([]model.Employee, error)
}

// EmployeeRepository is the concrete implementation
type EmployeeRepository struct {
	DB *sql.DB
}

// Upsert inserts or refreshes employees in one transaction.
func (r *EmployeeRepository) Upsert(ctx context.Context, employees []model.Employee) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO employees (email, name, department)
        VALUES ($1, $2, $3)
        ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, department = EXCLUDED.department
    `)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range employees {
		if _, err := stmt.ExecContext(ctx, e.Email, e.Name, e.Department); err != nil {
			return fmt.Errorf("upsert employee %s: %w", e.Email, err)
		}
	}
	return tx.Commit()
}

// Lookup returns the allowlisted employees among emails. Unknown addresses are simply absent.
func (r *EmployeeRepository) Lookup(ctx context.Context, emails []string) ([]model.Employee, error) {
	if len(emails) == 0 {
		return []model.Employee{}, nil
	}
	query := `SELECT email, name, department FROM employees WHERE email = ANY($1)`
	return r.query(ctx, query, pq.Array(emails))
}

// ListAll fetches the whole allowlist ordered by email
func (r *EmployeeRepository) ListAll(ctx context.Context) ([]model.Employee, error) {
	return r.query(ctx, `SELECT email, name, department FROM employees ORDER BY email`)
}

func (r *EmployeeRepository) query(ctx context.Context, query string, args ...any) ([]model.Employee, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	employees := []model.Employee{}
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(&e.Email, &e.Name, &e.Department); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

var _ EmployeeStore = (*EmployeeRepository)(nil)
