// internal/model/employee.go
package model

type Employee struct {
    Email      string `db:"email" json:"email"`
    Name       string `db:"name" json:"name"`
    Department string `db:"department" json:"department"`
}
