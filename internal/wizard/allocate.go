package wizard

import (
	"sort"

	"fleetjobs/internal/model"
)

// Allocate splits count across hubs in proportion to their device
// counts, using largest-remainder rounding with ties going to the
// earlier hub. The returned totals sum to count whenever at least one
// hub has devices. Hubs that receive nothing are left out.
func Allocate(count int, hubs []model.Hub) []model.HubProgress {
	if count <= 0 {
		return nil
	}
	var weight int64
	for _, h := range hubs {
		if h.DeviceCount > 0 {
			weight += int64(h.DeviceCount)
		}
	}
	if weight == 0 {
		return nil
	}

	shares := make([]int, len(hubs))
	remainders := make([]int64, len(hubs))
	assigned := 0
	for i, h := range hubs {
		if h.DeviceCount <= 0 {
			continue
		}
		q := int64(count) * int64(h.DeviceCount)
		shares[i] = int(q / weight)
		remainders[i] = q % weight
		assigned += shares[i]
	}

	order := make([]int, len(hubs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for _, i := range order {
		if assigned >= count {
			break
		}
		if hubs[i].DeviceCount <= 0 {
			continue
		}
		shares[i]++
		assigned++
	}

	out := make([]model.HubProgress, 0, len(hubs))
	for i, h := range hubs {
		if shares[i] == 0 {
			continue
		}
		out = append(out, model.NewHubProgress(h.Name, shares[i]))
	}
	return out
}
