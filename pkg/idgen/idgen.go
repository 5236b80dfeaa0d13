package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake"
)

// IDGenerator is the interface for generating unique IDs
type IDGenerator interface {
	// NextID generates a new unique ID
	NextID() (string, error)
}

// SonyflakeGenerator implements IDGenerator using sonyflake
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewSonyflakeGenerator creates a new SonyflakeGenerator
func NewSonyflakeGenerator(machineID uint16) (*SonyflakeGenerator, error) {
	st := sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: func() (uint16, error) {
			return machineID, nil
		},
	}

	sf, err := sonyflake.New(st)
	if err != nil {
		return nil, fmt.Errorf("failed to create sonyflake: %w", err)
	}

	return &SonyflakeGenerator{sf: sf}, nil
}

// NextID generates a new unique ID
func (g *SonyflakeGenerator) NextID() (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return fmt.Sprintf("%d", id), nil
}

// UUIDGenerator implements IDGenerator using random UUIDs
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUIDGenerator
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NextID generates a new UUID v4
func (g *UUIDGenerator) NextID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	return id.String(), nil
}

// Global default generator
var (
	defaultGenerator IDGenerator
	once             sync.Once
	initErr          error
)

// SetDefaultGenerator sets the default ID generator. Call before first use.
func SetDefaultGenerator(gen IDGenerator) {
	once.Do(func() {})
	defaultGenerator = gen
	initErr = nil
}

// GetDefaultGenerator returns the default ID generator
// If not set, creates a SonyflakeGenerator with machineID 1
func GetDefaultGenerator() (IDGenerator, error) {
	once.Do(func() {
		if defaultGenerator == nil {
			defaultGenerator, initErr = NewSonyflakeGenerator(1)
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	return defaultGenerator, nil
}

// NextID generates a new ID using the default generator
func NextID() (string, error) {
	gen, err := GetDefaultGenerator()
	if err != nil {
		return "", err
	}
	return gen.NextID()
}

// NextIDs generates n IDs, failing on the first error
func NextIDs(n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := NextID()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
