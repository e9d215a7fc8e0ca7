package ident

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"semchord/internal/service"
)

// ErrInvalidConfig is returned by NewSpace for unusable ring geometry.
var ErrInvalidConfig = errors.New("invalid identifier space config")

// ErrInvalidSpan is returned for spans whose bounds lie outside the space.
var ErrInvalidSpan = errors.New("invalid identifier span")

// Config describes the ring geometry.
type Config struct {
	SemanticBits        int // bits per semantic slot
	ExpectedNetworkSize int
	MaxProviders        int // expected providers per semantic descriptor
}

// DefaultConfig returns the geometry used when nothing is configured:
// 4x6 semantic bits and 18 provider bits, 42 bits in total.
func DefaultConfig() Config {
	return Config{
		SemanticBits:        6,
		ExpectedNetworkSize: 100000,
		MaxProviders:        1024,
	}
}

// Space holds the derived widths. It is immutable and safe for concurrent use.
type Space struct {
	semanticBits int
	providerBits int
	width        int
	mask         uint64
}

// ProviderBits computes
// ceil(log2(maxProviders-1) - log2(networkSize) + semanticTotalBits), at least 1.
func ProviderBits(semanticTotalBits, networkSize, maxProviders int) int {
	v := math.Log2(float64(maxProviders-1)) - math.Log2(float64(networkSize)) + float64(semanticTotalBits)
	bits := int(math.Ceil(v))
	if bits < 1 {
		bits = 1
	}
	return bits
}

// NewSpace validates cfg and derives the identifier width.
func NewSpace(cfg Config) (*Space, error) {
	if cfg.SemanticBits <= 0 {
		return nil, fmt.Errorf("%w: semantic bits must be positive, got %d", ErrInvalidConfig, cfg.SemanticBits)
	}
	if cfg.ExpectedNetworkSize <= 0 {
		return nil, fmt.Errorf("%w: expected network size must be positive, got %d", ErrInvalidConfig, cfg.ExpectedNetworkSize)
	}
	if cfg.MaxProviders < 2 {
		return nil, fmt.Errorf("%w: max providers must be at least 2, got %d", ErrInvalidConfig, cfg.MaxProviders)
	}

	semanticTotal := cfg.SemanticBits * service.SemanticSlots
	providerBits := ProviderBits(semanticTotal, cfg.ExpectedNetworkSize, cfg.MaxProviders)
	width := semanticTotal + providerBits
	if width > 64 {
		return nil, fmt.Errorf("%w: identifier width %d exceeds 64 bits", ErrInvalidConfig, width)
	}

	mask := ^uint64(0)
	if width < 64 {
		mask = (uint64(1) << width) - 1
	}

	return &Space{
		semanticBits: cfg.SemanticBits,
		providerBits: providerBits,
		width:        width,
		mask:         mask,
	}, nil
}

// MustSpace is NewSpace for geometry known to be valid, e.g. DefaultConfig.
func MustSpace(cfg Config) *Space {
	s, err := NewSpace(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Width is the identifier width in bits.
func (s *Space) Width() int { return s.width }

// SemanticBits is the width of one semantic slot.
func (s *Space) SemanticBits() int { return s.semanticBits }

// ProviderBits is the width of the provider slot.
func (s *Space) ProviderBits() int { return s.providerBits }

// Max is the largest identifier.
func (s *Space) Max() ID { return ID(s.mask) }

// HashIdentifier hashes every present attribute into its slot. Absent slots
// are zero.
func (s *Space) HashIdentifier(d service.Descriptor) (ID, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	var id uint64
	for i := 0; i < service.SemanticSlots; i++ {
		id <<= uint(s.semanticBits)
		if i < len(d.Semantic) {
			id |= slice(d.Semantic[i], s.semanticBits)
		}
	}
	id <<= uint(s.providerBits)
	if d.Provider != "" {
		id |= slice(d.Provider, s.providerBits)
	}
	return ID(id), nil
}

// SpanFor returns the span of every identifier consistent with d. Widening
// runs slot by slot from the first absent semantic slot through the provider.
func (s *Space) SpanFor(d service.Descriptor) (Span, error) {
	begin, err := s.HashIdentifier(d)
	if err != nil {
		return Span{}, err
	}

	end := uint64(begin)
	for i := len(d.Semantic); i < service.SemanticSlots; i++ {
		end |= s.semanticSlotMask(i)
	}
	if d.Provider == "" {
		end |= s.providerMask()
	}
	return NewSpan(begin, ID(end)), nil
}

// NodeID places a node on the ring by hashing its address.
func (s *Space) NodeID(addr string) ID {
	return ID(slice(addr, s.width))
}

// Add returns id+n modulo the ring size.
func (s *Space) Add(id ID, n uint64) ID {
	return ID((uint64(id) + n) & s.mask)
}

// AddPowerOfTwo returns id + 2^k modulo the ring size, computed as a ripple
// carry from bit k upwards. A carry out of the top bit is discarded.
func (s *Space) AddPowerOfTwo(id ID, k int) (ID, error) {
	if k < 0 || k >= s.width {
		return 0, fmt.Errorf("power %d outside identifier width %d", k, s.width)
	}
	v := uint64(id)
	for bit := k; bit < s.width; bit++ {
		m := uint64(1) << uint(bit)
		if v&m == 0 {
			v |= m
			break
		}
		v &^= m
	}
	return ID(v), nil
}

// ValidateSpan rejects bounds outside the space.
func (s *Space) ValidateSpan(sp Span) error {
	if sp.IsEmpty() {
		return nil
	}
	if uint64(sp.Begin) > s.mask || uint64(sp.End) > s.mask {
		return fmt.Errorf("%w: [%s, %s] exceeds %d bits", ErrInvalidSpan, sp.Begin, sp.End, s.width)
	}
	return nil
}

// Format renders id as fixed-width hex.
func (s *Space) Format(id ID) string {
	return fmt.Sprintf("%0*x", (s.width+3)/4, uint64(id))
}

func (s *Space) semanticSlotMask(slot int) uint64 {
	shift := s.providerBits + (service.SemanticSlots-1-slot)*s.semanticBits
	return ((uint64(1) << uint(s.semanticBits)) - 1) << uint(shift)
}

func (s *Space) providerMask() uint64 {
	return (uint64(1) << uint(s.providerBits)) - 1
}

// slice returns the leading bits of the SHA-1 digest of text.
func slice(text string, bits int) uint64 {
	sum := sha1.Sum([]byte(text))
	v := binary.BigEndian.Uint64(sum[:8])
	return v >> uint(64-bits)
}
