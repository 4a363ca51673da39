package extract

// MinRingPoints is the smallest closed ring: three distinct vertices plus the
// closing point.
const MinRingPoints = 4

// AssembleRing joins way node lists end to end into a single closed ring.
// Starting from the first way it repeatedly appends an unused way whose first
// or last node matches the ring's tail, reversing it when the last node
// matches and dropping the duplicated join node. It stops when no way
// connects or all are used. The ring is accepted only if it closes and has at
// least MinRingPoints nodes.
//
// Cost is O(w²) in the number of member ways, which stays small for real
// boundaries.
func AssembleRing(ways [][]int64) ([]int64, bool) {
	first := -1
	for i, w := range ways {
		if len(w) > 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, false
	}

	ring := append([]int64(nil), ways[first]...)
	used := make([]bool, len(ways))
	used[first] = true
	for i, w := range ways {
		if len(w) == 0 {
			used[i] = true
		}
	}

	for {
		if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
			break
		}
		tail := ring[len(ring)-1]
		found := false
		for i, w := range ways {
			if used[i] {
				continue
			}
			switch tail {
			case w[0]:
				ring = append(ring, w[1:]...)
			case w[len(w)-1]:
				for k := len(w) - 2; k >= 0; k-- {
					ring = append(ring, w[k])
				}
			default:
				continue
			}
			used[i] = true
			found = true
			break
		}
		if !found {
			break
		}
	}

	if len(ring) < MinRingPoints || ring[0] != ring[len(ring)-1] {
		return nil, false
	}
	return ring, true
}
