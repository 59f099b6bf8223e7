// Package geom provides the rigid-transform and vector primitives used by
// the fusion engine: 4x4 row-major poses for sensor registration and small
// 3D vectors for positions, velocities and accelerations.
package geom

import "math"

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity.
const MatrixValidationTolerance = 0.01

// Vec3 is a 3D vector in metres (positions) or metres/second (velocities).
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Neg returns -v.
func (v Vec3) Neg() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Dist returns the Euclidean distance between v and w.
func (v Vec3) Dist(w Vec3) float64 {
	return v.Sub(w).Norm()
}

// IsZero reports whether all components are exactly zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Pose is a rigid transform (e.g. sensor -> world) as a 4x4 row-major
// matrix: m00,m01,m02,m03, m10,... The rotation lives in the upper-left
// 3x3 block and the translation in column 3.
type Pose [16]float64

// Identity returns the identity transform.
func Identity() Pose {
	return Pose{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// FromTranslationYaw builds a pose from a translation and a rotation of
// yaw radians about the Z axis. Used heavily by tests and the scenario
// generator; real deployments load calibrated matrices.
func FromTranslationYaw(t Vec3, yaw float64) Pose {
	c, s := math.Cos(yaw), math.Sin(yaw)
	return Pose{
		c, -s, 0, t.X,
		s, c, 0, t.Y,
		0, 0, 1, t.Z,
		0, 0, 0, 1,
	}
}

// ApplyPoint transforms point p by the full pose (rotation + translation).
func (T Pose) ApplyPoint(p Vec3) Vec3 {
	return Vec3{
		X: T[0]*p.X + T[1]*p.Y + T[2]*p.Z + T[3],
		Y: T[4]*p.X + T[5]*p.Y + T[6]*p.Z + T[7],
		Z: T[8]*p.X + T[9]*p.Y + T[10]*p.Z + T[11],
	}
}

// ApplyDirection transforms direction d by the rotation block only.
// Velocities and heading directions re-base this way: a pure translation
// of the frame must not bend them.
func (T Pose) ApplyDirection(d Vec3) Vec3 {
	return Vec3{
		X: T[0]*d.X + T[1]*d.Y + T[2]*d.Z,
		Y: T[4]*d.X + T[5]*d.Y + T[6]*d.Z,
		Z: T[8]*d.X + T[9]*d.Y + T[10]*d.Z,
	}
}

// Translation returns the translation column of the pose.
func (T Pose) Translation() Vec3 {
	return Vec3{T[3], T[7], T[11]}
}

// Pretranslate returns a copy of the pose with offset added to its
// translation. This is the re-basing operation: composing a pure
// translation on the world side of the transform.
func (T Pose) Pretranslate(offset Vec3) Pose {
	out := T
	out[3] += offset.X
	out[7] += offset.Y
	out[11] += offset.Z
	return out
}

// Yaw returns the rotation about Z encoded in the pose's rotation block.
func (T Pose) Yaw() float64 {
	return math.Atan2(T[4], T[0])
}

// Inverse returns the inverse rigid transform: transpose of the rotation
// block and a negated, rotated translation. Only valid for proper rigid
// poses (orthonormal rotation).
func (T Pose) Inverse() Pose {
	r00, r01, r02 := T[0], T[1], T[2]
	r10, r11, r12 := T[4], T[5], T[6]
	r20, r21, r22 := T[8], T[9], T[10]
	tx, ty, tz := T[3], T[7], T[11]

	return Pose{
		r00, r10, r20, -(r00*tx + r10*ty + r20*tz),
		r01, r11, r21, -(r01*tx + r11*ty + r21*tz),
		r02, r12, r22, -(r02*tx + r12*ty + r22*tz),
		0, 0, 0, 1,
	}
}

// Valid reports whether the pose is a proper rigid transform:
// orthonormal rotation block (det ≈ 1) and a [0 0 0 1] bottom row.
func (T Pose) Valid() bool {
	r00, r01, r02 := T[0], T[1], T[2]
	r10, r11, r12 := T[4], T[5], T[6]
	r20, r21, r22 := T[8], T[9], T[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}

	if T[12] != 0 || T[13] != 0 || T[14] != 0 || math.Abs(T[15]-1.0) > 0.001 {
		return false
	}
	return true
}
