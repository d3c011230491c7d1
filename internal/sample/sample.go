// Package sample generates school rows for demos, chart previews and local
// development databases.
package sample

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/connector"
	"github.com/vitebski/catchment-insights/pkg/models"
)

var (
	schoolTypes    = []string{"Primary", "Secondary", "Special", "Combined"}
	schoolSuffixes = []string{"Primary School", "High School", "College", "Public School", "Academy"}
	epoch          = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Columns lists the sample school columns in order
var Columns = []string{"school_id", "school_name", "school_type", "district", "enrollment_capacity", "opened_on", "latitude", "longitude"}

// School is one generated school
type School struct {
	ID                 string
	Name               string
	Type               string
	District           string
	EnrollmentCapacity int
	OpenedOn           time.Time
	Latitude           float64
	Longitude          float64
}

// Row converts the school into a result row
func (s School) Row() models.Row {
	return models.NewRow(
		models.Col("school_id", s.ID),
		models.Col("school_name", s.Name),
		models.Col("school_type", s.Type),
		models.Col("district", s.District),
		models.Col("enrollment_capacity", s.EnrollmentCapacity),
		models.Field{Name: "opened_on", Value: models.Date(s.OpenedOn.Format("2006-01-02"))},
		models.Col("latitude", s.Latitude),
		models.Col("longitude", s.Longitude),
	)
}

func (s School) params() []interface{} {
	return []interface{}{s.ID, s.Name, s.Type, s.District, s.EnrollmentCapacity, s.OpenedOn.Format("2006-01-02"), s.Latitude, s.Longitude}
}

// Generator produces deterministic schools for a seed
type Generator struct {
	Faker faker.Faker
}

// NewGenerator creates a generator; equal seeds give equal schools
func NewGenerator(seed int64) *Generator {
	return &Generator{Faker: faker.NewWithSeed(rand.NewSource(seed))}
}

// Schools generates n schools with a handful of districts so the district
// column stays categorical
func (g *Generator) Schools(n int) []School {
	districtCount := n/5 + 1
	if districtCount > 8 {
		districtCount = 8
	}
	districts := make([]string, districtCount)
	for i := range districts {
		districts[i] = g.Faker.Address().City()
	}

	schools := make([]School, 0, n)
	for i := 0; i < n; i++ {
		schools = append(schools, School{
			ID:                 fmt.Sprintf("SCH-%03d", i+1),
			Name:               g.Faker.Person().LastName() + " " + g.Faker.RandomStringElement(schoolSuffixes),
			Type:               g.Faker.RandomStringElement(schoolTypes),
			District:           g.Faker.RandomStringElement(districts),
			EnrollmentCapacity: g.Faker.IntBetween(150, 1500),
			OpenedOn:           epoch.AddDate(0, 0, g.Faker.IntBetween(0, 365*70)),
			Latitude:           -33.5 - float64(g.Faker.IntBetween(0, 10000))/10000,
			Longitude:          150.7 + float64(g.Faker.IntBetween(0, 10000))/10000,
		})
	}
	return schools
}

// SchoolRows generates n sample school rows
func SchoolRows(n int, seed int64) []models.Row {
	schools := NewGenerator(seed).Schools(n)
	rows := make([]models.Row, 0, len(schools))
	for _, s := range schools {
		rows = append(rows, s.Row())
	}
	return rows
}

// Statements is the subset of the connector used for seeding
type Statements interface {
	ExecuteStatement(ctx context.Context, query string, params ...interface{}) (int64, error)
	ExecuteMany(ctx context.Context, query string, paramsList [][]interface{}) (int64, error)
}

// Seeder creates and fills the schools table of a development database
type Seeder struct {
	DB     Statements
	Driver string
	Logger *logrus.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(db Statements, driver string, logger *logrus.Logger) *Seeder {
	return &Seeder{DB: db, Driver: driver, Logger: logger}
}

func (s *Seeder) createTable() string {
	if s.Driver == connector.DriverSQLite {
		return `CREATE TABLE IF NOT EXISTS schools (
			school_id TEXT PRIMARY KEY,
			school_name TEXT NOT NULL,
			school_type TEXT,
			district TEXT,
			enrollment_capacity INTEGER,
			opened_on DATE,
			latitude REAL,
			longitude REAL
		)`
	}
	return `CREATE TABLE IF NOT EXISTS schools (
		school_id VARCHAR(16) PRIMARY KEY,
		school_name VARCHAR(255) NOT NULL,
		school_type VARCHAR(100),
		district VARCHAR(255),
		enrollment_capacity INT,
		opened_on DATE,
		latitude DECIMAL(9,6),
		longitude DECIMAL(9,6)
	)`
}

// Seed replaces the contents of the schools table with n generated schools
func (s *Seeder) Seed(ctx context.Context, n int, seed int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("number of rows must be positive, got %d", n)
	}

	if _, err := s.DB.ExecuteStatement(ctx, s.createTable()); err != nil {
		return 0, fmt.Errorf("failed to create schools table: %w", err)
	}
	if _, err := s.DB.ExecuteStatement(ctx, "DELETE FROM schools"); err != nil {
		return 0, fmt.Errorf("failed to clear schools table: %w", err)
	}

	schools := NewGenerator(seed).Schools(n)
	params := make([][]interface{}, 0, len(schools))
	for _, school := range schools {
		params = append(params, school.params())
	}

	insert := "INSERT INTO schools (school_id, school_name, school_type, district, enrollment_capacity, opened_on, latitude, longitude) VALUES (?, ?, ?, ?, ?, ?, ?, ?)"
	inserted, err := s.DB.ExecuteMany(ctx, insert, params)
	if err != nil {
		return 0, fmt.Errorf("failed to insert schools: %w", err)
	}

	s.Logger.Infof("Seeded %d school(s)", inserted)
	return inserted, nil
}
