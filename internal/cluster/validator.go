// Package cluster decides which reuse factors form a hexagonal cluster and
// tiles a plane with the frequency groups of such a cluster.
package cluster

import (
	"errors"
	"math"

	"github.com/gravitas-games/cellplan/internal/hexgrid"
)

// ErrInvalidClusterSize is returned when N is not of the form i²+ij+j².
var ErrInvalidClusterSize = errors.New("invalid cluster size")

// MaxClusterSize is the largest N considered. Larger values are treated as
// invalid so that a submission can never stall the plan writer.
const MaxClusterSize = 1 << 20

// IsValidClusterSize reports whether some i in [0,n] and j in [-n,i] give
// i²+j²+ij == n. Sizes above MaxClusterSize are never valid.
func IsValidClusterSize(n int) bool {
	found := false
	search(n, func(hexgrid.Axial) bool {
		found = true
		return false
	})
	return found
}

// Offsets returns every (i, j) with i in [0,n], j in [-n,i] and
// i²+j²+ij == n, ordered by i then j. A cell at c takes its color from
// c-(i,j).
func Offsets(n int) []hexgrid.Axial {
	var res []hexgrid.Axial
	search(n, func(o hexgrid.Axial) bool {
		res = append(res, o)
		return true
	})
	return res
}

// search visits the offsets of n in (i, j) order until visit returns false.
// i²+ij+j² = n is (2j+i)² = 4n-3i², so i stops once 3i² > 4n and each i
// has at most the two roots j = (-i ± d)/2 with d² = 4n-3i².
func search(n int, visit func(hexgrid.Axial) bool) {
	if n < 0 || n > MaxClusterSize {
		return
	}
	for i := 0; 3*i*i <= 4*n; i++ {
		rem := 4*n - 3*i*i
		d := isqrt(rem)
		if d*d != rem || (d-i)%2 != 0 {
			continue
		}
		roots := []int{(-i - d) / 2, (-i + d) / 2}
		if d == 0 {
			roots = roots[:1]
		}
		for _, j := range roots {
			o := hexgrid.Axial{Q: i, R: j}
			if j < -n || j > i || o.Norm() != n {
				continue
			}
			if !visit(o) {
				return
			}
		}
	}
}

func isqrt(v int) int {
	r := int(math.Sqrt(float64(v)))
	for r*r > v {
		r--
	}
	for (r+1)*(r+1) <= v {
		r++
	}
	return r
}
