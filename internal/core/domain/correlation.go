package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MetadataReservationKey is the checkout metadata key carrying the reservation id.
const MetadataReservationKey = "reservation_id"

const correlationPrefix = "RES"

var correlationPattern = regexp.MustCompile(`^RES-(\d+)-\d+$`)

// CorrelationToken returns the external reference sent with a checkout:
// RES-<reservationID>-<unix millis>.
func CorrelationToken(reservationID int64, at time.Time) string {
	return fmt.Sprintf("%s-%d-%d", correlationPrefix, reservationID, at.UnixMilli())
}

// ParseCorrelationToken extracts the reservation id from an external reference.
func ParseCorrelationToken(ref string) (int64, bool) {
	m := correlationPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ReservationResolver extracts a reservation id from a gateway payment.
type ReservationResolver struct {
	Name    string
	Resolve func(p *GatewayPayment) (int64, bool)
}

// DefaultResolvers lists the strategies in the order they are tried.
func DefaultResolvers() []ReservationResolver {
	return []ReservationResolver{
		{Name: "metadata", Resolve: ResolveFromMetadata},
		{Name: "external_reference", Resolve: ResolveFromExternalReference},
	}
}

// ResolveFromMetadata reads the reservation id echoed back in the checkout metadata.
func ResolveFromMetadata(p *GatewayPayment) (int64, bool) {
	if p == nil || p.Metadata == nil {
		return 0, false
	}
	raw, ok := p.Metadata[MetadataReservationKey]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		if v <= 0 || v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// ResolveFromExternalReference parses the correlation token.
func ResolveFromExternalReference(p *GatewayPayment) (int64, bool) {
	if p == nil {
		return 0, false
	}
	return ParseCorrelationToken(p.ExternalReference)
}
