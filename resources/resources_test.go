package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zeroEpsilon = 0.000001

func TestAddMergesScalarsByIdentity(t *testing.T) {
	b := MustParse("cpus:2;mem:1024")
	b = b.Add(MustParse("cpus:1;disk:100"))

	assert.InEpsilon(t, 3.0, b.Scalar("cpus"), zeroEpsilon)
	assert.InEpsilon(t, 1024.0, b.Scalar("mem"), zeroEpsilon)
	assert.InEpsilon(t, 100.0, b.Scalar("disk"), zeroEpsilon)
	assert.Len(t, b, 3)
}

func TestAddKeepsDistinctReservationsApart(t *testing.T) {
	b := MustParse("cpus:2")
	b = b.Add(MustParse("cpus(role1):1"))

	assert.Len(t, b, 2)
	assert.InEpsilon(t, 2.0, b.Unreserved().Scalar("cpus"), zeroEpsilon)
	assert.InEpsilon(t, 1.0, b.Reserved("role1").Scalar("cpus"), zeroEpsilon)
	// Scalar ignores reservations.
	assert.InEpsilon(t, 3.0, b.Scalar("cpus"), zeroEpsilon)
}

func TestSubtractClampsAndRemovesEmptyEntries(t *testing.T) {
	b := MustParse("cpus:2;mem:1024")
	b = b.Subtract(MustParse("cpus:2;mem:512"))

	assert.InDelta(t, 0.0, b.Scalar("cpus"), zeroEpsilon)
	assert.InEpsilon(t, 512.0, b.Scalar("mem"), zeroEpsilon)
	assert.Len(t, b, 1)

	// Subtracting more than held clamps at zero.
	b = b.Subtract(MustParse("mem:9999"))
	assert.True(t, b.IsEmpty())
}

func TestContains(t *testing.T) {
	b := MustParse("cpus:2;mem:1024;disk(role1):100")

	assert.True(t, b.Contains(MustParse("cpus:1;mem:512")))
	assert.True(t, b.Contains(MustParse("disk(role1):100")))
	assert.False(t, b.Contains(MustParse("disk:1")))
	assert.False(t, b.Contains(MustParse("cpus:3")))
	assert.False(t, b.Contains(MustParse("gpus:1")))

	// A split request must not pass against a single merged entry twice.
	assert.False(t, b.Contains(Bundle{NewScalar("cpus", 1.5), NewScalar("cpus", 1.5)}))
}

func TestTrySubtract(t *testing.T) {
	b := MustParse("cpus:2;mem:1024")

	assert.Nil(t, b.TrySubtract(MustParse("cpus:3")))

	got := b.TrySubtract(MustParse("cpus:1;mem:24"))
	require.NotNil(t, got)
	assert.InEpsilon(t, 1.0, got.Scalar("cpus"), zeroEpsilon)
	assert.InEpsilon(t, 1000.0, got.Scalar("mem"), zeroEpsilon)
}

func TestRangesAlgebra(t *testing.T) {
	ports := Bundle{NewRanges("ports", Range{Begin: 31000, End: 32000})}

	taken := Bundle{NewRanges("ports", Range{Begin: 31000, End: 31009})}
	assert.True(t, ports.Contains(taken))

	left := ports.Subtract(taken)
	assert.False(t, left.Contains(taken))
	assert.True(t, left.Contains(
		Bundle{NewRanges("ports", Range{Begin: 31010, End: 32000})}))

	back := left.Add(taken)
	assert.True(t, back.Contains(ports))
	assert.Len(t, back, 1)
	assert.Len(t, back[0].Ranges, 1)
}

func TestSetAlgebra(t *testing.T) {
	b := Bundle{{Name: "features", Type: SET, Set: []string{"a", "b", "c"}}}

	sub := Bundle{{Name: "features", Type: SET, Set: []string{"b"}}}
	assert.True(t, b.Contains(sub))

	left := b.Subtract(sub)
	assert.False(t, left.Contains(sub))
	assert.True(t, left.Contains(
		Bundle{{Name: "features", Type: SET, Set: []string{"a", "c"}}}))
}

func TestRevocableFilters(t *testing.T) {
	b := MustParse("cpus:2").Add(Bundle{NewRevocableScalar("cpus", 4)})

	assert.InEpsilon(t, 4.0, b.Revocable().Scalar("cpus"), zeroEpsilon)
	assert.InEpsilon(t, 2.0, b.NonRevocable().Scalar("cpus"), zeroEpsilon)
	assert.Len(t, b, 2)
}

func TestFlatten(t *testing.T) {
	b := MustParse("cpus(role1):1;cpus:1")

	flat := b.Flatten()
	assert.Len(t, flat, 1)
	assert.InEpsilon(t, 2.0, flat.Unreserved().Scalar("cpus"), zeroEpsilon)
}

func TestFlattenTo(t *testing.T) {
	b := MustParse("cpus:2")

	reserved := b.FlattenTo("role1", "principal1")
	assert.True(t, reserved.Unreserved().IsEmpty())
	assert.InEpsilon(t, 2.0, reserved.Reserved("role1").Scalar("cpus"), zeroEpsilon)
	assert.True(t, reserved[0].Reservation.Dynamic)
	assert.Equal(t, "principal1", reserved[0].Reservation.Principal)
}

func TestSharedResourcesAreIdempotentUnderAdd(t *testing.T) {
	vol := NewSharedVolume(5, "role1", "id1", "path1")
	b := Bundle{vol}

	b = b.Add(Bundle{vol})
	assert.Len(t, b, 1)
	assert.InEpsilon(t, 5.0, b.Scalar("disk"), zeroEpsilon)

	// One subtraction per addition: the entry survives until more copies
	// are taken out than were put in.
	b = b.Subtract(Bundle{vol})
	assert.True(t, b.Contains(Bundle{vol}))

	b = b.Subtract(Bundle{vol})
	assert.False(t, b.Contains(Bundle{vol}))
	assert.True(t, b.IsEmpty())
}

func TestSharedAndNonSharedFilters(t *testing.T) {
	b := MustParse("disk:100").Add(Bundle{NewSharedVolume(5, "role1", "id1", "p")})

	assert.InEpsilon(t, 5.0, b.Shared().Scalar("disk"), zeroEpsilon)
	assert.InEpsilon(t, 100.0, b.NonShared().Scalar("disk"), zeroEpsilon)
}

func TestScalarQuantitiesStripIdentity(t *testing.T) {
	b := MustParse("cpus:1;cpus(role1):2").Add(Bundle{NewRevocableScalar("cpus", 4)})

	q := b.ScalarQuantities()
	assert.InEpsilon(t, 7.0, q.Get("cpus"), zeroEpsilon)
}

func TestQuantities(t *testing.T) {
	q := Quantities{"cpus": 2, "mem": 1024}

	q.Subtract(Quantities{"cpus": 1, "mem": 2048})
	assert.InEpsilon(t, 1.0, q.Get("cpus"), zeroEpsilon)
	assert.InDelta(t, 0.0, q.Get("mem"), zeroEpsilon)

	assert.True(t, q.Contains(Quantities{"cpus": 1}))
	assert.False(t, q.Contains(Quantities{"cpus": 2}))

	q.Add(Quantities{"gpus": 1})
	assert.False(t, q.IsEmpty())
}

func TestParse(t *testing.T) {
	b, err := Parse("cpus:2.5;mem:1024;ports:[31000-32000,33000-33999];disk(role1):100")
	require.NoError(t, err)

	assert.InEpsilon(t, 2.5, b.Scalar("cpus"), zeroEpsilon)
	assert.InEpsilon(t, 1024.0, b.Scalar("mem"), zeroEpsilon)
	assert.InEpsilon(t, 100.0, b.Reserved("role1").Scalar("disk"), zeroEpsilon)
	assert.True(t, b.Contains(
		Bundle{NewRanges("ports", Range{Begin: 33000, End: 33500})}))

	_, err = Parse("cpus")
	assert.Error(t, err)
	_, err = Parse("cpus:abc")
	assert.Error(t, err)
}
