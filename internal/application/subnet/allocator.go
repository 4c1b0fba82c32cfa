// Package subnet assigns each app its own /24 docker network block.
package subnet

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"appcrane/internal/domain/model"
	"appcrane/internal/domain/repository"
	"appcrane/pkg/log"
)

const (
	// FirstIndex is the lowest allocatable third octet; 0-9 are reserved.
	FirstIndex = 10
	// LastIndex is the highest allocatable third octet.
	LastIndex = 254
)

// FormatSubnet returns the subnet for index n, e.g. 10.128.12.0/24.
func FormatSubnet(n int) string {
	return fmt.Sprintf("10.128.%d.0/24", n)
}

// ParseSubnetIndex extracts n from a 10.128.<n>.0/24 string. Anything else,
// including an index outside [0,255], is reported as not ok.
func ParseSubnetIndex(s string) (int, bool) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil || prefix.Bits() != 24 || !prefix.Addr().Is4() {
		return 0, false
	}
	octets := prefix.Addr().As4()
	if octets[0] != 10 || octets[1] != 128 || octets[3] != 0 {
		return 0, false
	}
	return int(octets[2]), true
}

// Allocator hands out subnets first-fit. The set of non-null App.Subnet values
// is the whole allocation state; the mutex makes the read-modify-write atomic
// within the process.
type Allocator struct {
	apps repository.AppRepository
	mu   sync.Mutex
}

func NewAllocator(apps repository.AppRepository) *Allocator {
	return &Allocator{apps: apps}
}

// Allocate returns the app's subnet, assigning the smallest free one if the
// app has none yet.
func (a *Allocator) Allocate(ctx context.Context, urn model.AppUrn) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	app, err := a.apps.Get(ctx, urn)
	if err != nil {
		return "", err
	}
	if app.Subnet != nil && *app.Subnet != "" {
		return *app.Subnet, nil
	}

	all, err := a.apps.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("list apps: %w", err)
	}

	used := make(map[int]struct{}, len(all))
	for _, other := range all {
		if other.Subnet == nil {
			continue
		}
		n, ok := ParseSubnetIndex(*other.Subnet)
		if !ok {
			log.Warn("[Subnet] ignoring malformed subnet", "app_urn", other.Urn, "subnet", *other.Subnet)
			continue
		}
		used[n] = struct{}{}
	}

	for n := FirstIndex; n <= LastIndex; n++ {
		if _, taken := used[n]; taken {
			continue
		}
		subnet := FormatSubnet(n)
		if _, err := a.apps.Update(ctx, urn, model.AppPatch{Subnet: &subnet}); err != nil {
			return "", fmt.Errorf("persist subnet for %s: %w", urn, err)
		}
		log.Info("[Subnet] allocated", "app_urn", urn, "subnet", subnet)
		return subnet, nil
	}

	return "", model.NewResourceExhaustedError("NoAvailableSubnets", "no available subnets")
}
