package scheduler

import "github.com/jorge-barreto/docchain/internal/registry"

// Plan groups stages into waves. Every stage's required upstream stages sit
// in earlier waves, so the stages of one wave can run concurrently. Stages
// keep their topological order within a wave.
func Plan(reg *registry.Registry) ([][]string, error) {
	order, err := reg.Order()
	if err != nil {
		return nil, err
	}
	level := make(map[string]int, len(order))
	var waves [][]string
	for _, id := range order {
		st, _ := reg.Stage(id)
		l := 0
		for _, dep := range st.Required {
			if level[dep]+1 > l {
				l = level[dep] + 1
			}
		}
		level[id] = l
		for len(waves) <= l {
			waves = append(waves, nil)
		}
		waves[l] = append(waves[l], id)
	}
	return waves, nil
}
