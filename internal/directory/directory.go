// Package directory resolves people referenced by scheduling records. The core
// only uses it for display names and attribution.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

type Accounts interface {
	// PatientName returns "" when the code is unknown.
	PatientName(ctx context.Context, code string) (string, error)
	DentistName(ctx context.Context, code string) (string, error)
}

type Staff interface {
	IsActiveReceptionist(ctx context.Context, code string) (bool, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgDirectory struct {
	db querier
}

func NewPgDirectory(db querier) *PgDirectory {
	return &PgDirectory{db: db}
}

func (d *PgDirectory) PatientName(ctx context.Context, code string) (string, error) {
	return d.name(ctx, `SELECT name FROM patients WHERE code = $1`, code)
}

func (d *PgDirectory) DentistName(ctx context.Context, code string) (string, error) {
	return d.name(ctx, `SELECT name FROM dentists WHERE code = $1`, code)
}

func (d *PgDirectory) name(ctx context.Context, query, code string) (string, error) {
	var name string
	err := d.db.QueryRow(ctx, query, code).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup name %s: %w", code, err)
	}
	return name, nil
}

func (d *PgDirectory) IsActiveReceptionist(ctx context.Context, code string) (bool, error) {
	var active bool
	err := d.db.QueryRow(ctx, `
		SELECT is_active
		FROM staff
		WHERE code = $1 AND role = 'receptionist'
	`, code).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup staff %s: %w", code, err)
	}
	return active, nil
}

// Memory is a map-backed directory for memory mode and tests.
type Memory struct {
	mu           sync.RWMutex
	patients     map[string]string
	dentists     map[string]string
	receptionist map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		patients:     make(map[string]string),
		dentists:     make(map[string]string),
		receptionist: make(map[string]bool),
	}
}

func (m *Memory) AddPatient(code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[code] = name
}

func (m *Memory) AddDentist(code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dentists[code] = name
}

func (m *Memory) AddReceptionist(code string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receptionist[code] = active
}

func (m *Memory) PatientName(_ context.Context, code string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.patients[code], nil
}

func (m *Memory) DentistName(_ context.Context, code string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dentists[code], nil
}

func (m *Memory) IsActiveReceptionist(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.receptionist[code], nil
}
