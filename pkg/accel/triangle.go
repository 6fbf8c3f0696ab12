package accel

import (
	"github.com/df07/go-raycasting-scene/pkg/core"
)

// Determinants below this fraction of |edge1|*|edge2|*|direction| mean the ray
// lies in the triangle's plane or the triangle is degenerate
const determinantEpsilon = 1e-12

// intersectTriangle tests a ray against triangle (v0, v1, v2) using the Möller-Trumbore
// algorithm. u and v are barycentric weights of v1 and v2.
func intersectTriangle(ray core.Ray, v0, v1, v2 core.Vec3, tMin, tMax float64) (t, u, v float64, ok bool) {
	edge1 := v1.Subtract(v0)
	edge2 := v2.Subtract(v0)

	h := ray.Direction.Cross(edge2)
	a := edge1.Dot(h)

	// Compared squared to keep the hot path free of square roots
	scale := edge1.LengthSquared() * edge2.LengthSquared() * ray.Direction.LengthSquared()
	if !(a*a > determinantEpsilon*determinantEpsilon*scale) {
		return 0, 0, 0, false
	}

	f := 1.0 / a
	s := ray.Origin.Subtract(v0)
	u = f * s.Dot(h)
	if !(u >= 0.0 && u <= 1.0) {
		return 0, 0, 0, false
	}

	q := s.Cross(edge1)
	v = f * ray.Direction.Dot(q)
	if !(v >= 0.0 && u+v <= 1.0) {
		return 0, 0, 0, false
	}

	t = f * edge2.Dot(q)
	if !(t >= tMin && t <= tMax) {
		return 0, 0, 0, false
	}

	return t, u, v, true
}

// geometricNormal returns the unnormalized normal (v1-v0) x (v2-v0)
func geometricNormal(v0, v1, v2 core.Vec3) core.Vec3 {
	return v1.Subtract(v0).Cross(v2.Subtract(v0))
}
