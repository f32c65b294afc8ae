// Package entity holds the customer record persisted by the batch job.
package entity

// Customer is one row of the customers table. ID is the upsert key.
type Customer struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	FirstName string `gorm:"column:first_name"`
	LastName  string `gorm:"column:last_name"`
	Email     string `gorm:"column:email"`
	Gender    string `gorm:"column:gender"`
	ContactNo string `gorm:"column:contact_no"`
	Country   string `gorm:"column:country"`
	Dob       string `gorm:"column:dob"`
}

// TableName is the table GORM reads and writes.
func (Customer) TableName() string {
	return "customers"
}

// UpdatableColumns are the columns an upsert overwrites when the id already exists.
var UpdatableColumns = []string{"first_name", "last_name", "email", "gender", "contact_no", "country", "dob"}
