package telemetry

import (
	"math/rand"
	"strconv"
	"sync"
)

const (
	plateLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	plateDigits  = "0123456789"
)

// Generator builds synthetic vehicle records.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator. A nil rng draws from the process-wide source.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// NewSeededGenerator creates a generator with its own deterministic source.
func NewSeededGenerator(seed int64) *Generator {
	return NewGenerator(rand.New(rand.NewSource(seed)))
}

// GlobalIndex maps a virtual user's local iteration onto the run-wide sequence.
func GlobalIndex(it IterationContext, rc RunConfig) int {
	if rc.VirtualUsers <= 0 {
		return it.Iteration
	}
	perVU := rc.Iterations / rc.VirtualUsers
	return (it.VirtualUser-1)*perVU + it.Iteration
}

// Classify returns Position below the last index of the run and Emergency
// from it onwards, so indexes past the end stay Emergency.
func Classify(globalIndex, totalIterations int) MessageType {
	if totalIterations <= 0 {
		return TypePosition
	}
	if globalIndex < totalIterations-1 {
		return TypePosition
	}
	return TypeEmergency
}

// BuildRecord composes a full record for the given global index.
func (g *Generator) BuildRecord(globalIndex int, rc RunConfig) Record {
	return Record{
		Type:         Classify(globalIndex, rc.Iterations),
		VehiclePlate: g.RandomPlate(),
		Coordinates:  g.RandomCoordinates(),
		Status:       StatusOK,
	}
}

// RandomPlate returns a plate in LLL-NNN form.
func (g *Generator) RandomPlate() string {
	var b [7]byte
	for i := 0; i < 3; i++ {
		b[i] = plateLetters[g.intn(len(plateLetters))]
	}
	b[3] = '-'
	for i := 4; i < 7; i++ {
		b[i] = plateDigits[g.intn(len(plateDigits))]
	}
	return string(b[:])
}

// RandomCoordinates samples latitude and longitude uniformly over their
// numeric ranges. The result is not uniform over the sphere.
func (g *Generator) RandomCoordinates() Coordinates {
	lat := g.float64()*180 - 90
	lon := g.float64()*360 - 180
	return Coordinates{
		Latitude:  formatCoord(lat),
		Longitude: formatCoord(lon),
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func (g *Generator) intn(n int) int {
	if g.rng == nil {
		return rand.Intn(n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

func (g *Generator) float64() float64 {
	if g.rng == nil {
		return rand.Float64()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}
