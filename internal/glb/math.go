package glb

import "math"

// mat4 is a column-major 4x4 matrix, matching the glTF layout.
type mat4 [16]float64

var identityQuat = [4]float64{0, 0, 0, 1}

func identity() mat4 {
	return mat4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

func localMatrix(n gltfNode) mat4 {
	if len(n.Matrix) == 16 {
		var m mat4
		copy(m[:], n.Matrix)
		return m
	}
	t := Vec3{}
	if len(n.Translation) == 3 {
		t = Vec3{n.Translation[0], n.Translation[1], n.Translation[2]}
	}
	q := identityQuat
	if len(n.Rotation) == 4 {
		q = [4]float64{n.Rotation[0], n.Rotation[1], n.Rotation[2], n.Rotation[3]}
	}
	s := Vec3{1, 1, 1}
	if len(n.Scale) == 3 {
		s = Vec3{n.Scale[0], n.Scale[1], n.Scale[2]}
	}
	return composeTRS(t, q, s)
}

// composeTRS builds T * R * S.
func composeTRS(t Vec3, q [4]float64, s Vec3) mat4 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z

	return mat4{
		(1 - 2*(yy+zz)) * s[0], 2 * (xy + wz) * s[0], 2 * (xz - wy) * s[0], 0,
		2 * (xy - wz) * s[1], (1 - 2*(xx+zz)) * s[1], 2 * (yz + wx) * s[1], 0,
		2 * (xz + wy) * s[2], 2 * (yz - wx) * s[2], (1 - 2*(xx+yy)) * s[2], 0,
		t[0], t[1], t[2], 1,
	}
}

func mul(a, b mat4) mat4 {
	var out mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

func transformPoint(m mat4, p Vec3) Vec3 {
	return Vec3{
		m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12],
		m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13],
		m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14],
	}
}

// quatFromTo returns the shortest rotation taking unit vector a onto b.
func quatFromTo(a, b Vec3) [4]float64 {
	d := a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
	if d > 1-epsilon {
		return identityQuat
	}
	if d < -1+epsilon {
		axis := Vec3{1, 0, 0}
		if math.Abs(a[0]) > 0.9 {
			axis = Vec3{0, 0, 1}
		}
		// axis orthogonal to a
		c := cross(a, axis)
		n := math.Sqrt(c[0]*c[0] + c[1]*c[1] + c[2]*c[2])
		return [4]float64{c[0] / n, c[1] / n, c[2] / n, 0}
	}
	c := cross(a, b)
	q := [4]float64{c[0], c[1], c[2], 1 + d}
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	return [4]float64{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

func cross(a, b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
