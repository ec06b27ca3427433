package domain

import (
	"context"
	"time"
)

// Customer is the read-only contact projection the engine needs for
// personalization and condition checks. CRM CRUD lives elsewhere.
type Customer struct {
	ID          string
	WorkspaceID string
	Name        string
	FirstName   string
	Phone       string
	Email       string
	OptedOut    bool
}

type CRMJob struct {
	ID          string
	WorkspaceID string
	CustomerID  string
	Title       string
	Status      string
	ScheduledAt *time.Time
}

type Workspace struct {
	ID         string
	Name       string
	OwnerEmail string
	OwnerPhone string
}

type CustomerReader interface {
	GetCustomer(ctx context.Context, workspaceID, customerID string) (*Customer, error)
}

type CRMJobReader interface {
	GetCRMJob(ctx context.Context, workspaceID, crmJobID string) (*CRMJob, error)
}

type WorkspaceReader interface {
	GetWorkspace(ctx context.Context, workspaceID string) (*Workspace, error)
}

// Forecast is the slice of a weather report the weather_check handler
// cares about.
type Forecast struct {
	RainProbability float64
	Summary         string
}

type WeatherService interface {
	GetForecast(ctx context.Context, latitude, longitude float64, date string) (*Forecast, error)
}
