package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyReserve(t *testing.T) {
	b := MustParse("cpus:2;mem:1024")
	reserved := Bundle{NewDynamicReservedScalar("cpus", 1, "role1", "principal1")}

	got, err := b.Apply(&Operation{Type: RESERVE, Resources: reserved})
	require.NoError(t, err)

	assert.InEpsilon(t, 1.0, got.Unreserved().Scalar("cpus"), zeroEpsilon)
	assert.InEpsilon(t, 1.0, got.Reserved("role1").Scalar("cpus"), zeroEpsilon)
	assert.InEpsilon(t, 1024.0, got.Scalar("mem"), zeroEpsilon)

	// The receiver is untouched.
	assert.InEpsilon(t, 2.0, b.Unreserved().Scalar("cpus"), zeroEpsilon)
}

func TestApplyReserveFailsWithoutUnreserved(t *testing.T) {
	b := MustParse("cpus:0.5")
	reserved := Bundle{NewDynamicReservedScalar("cpus", 1, "role1", "principal1")}

	_, err := b.Apply(&Operation{Type: RESERVE, Resources: reserved})
	assert.Error(t, err)
}

func TestApplyReserveRejectsStaticReservation(t *testing.T) {
	b := MustParse("cpus:2")

	_, err := b.Apply(&Operation{
		Type:      RESERVE,
		Resources: MustParse("cpus(role1):1"),
	})
	assert.Error(t, err)
}

func TestApplyUnreserveRoundTrips(t *testing.T) {
	b := MustParse("cpus:2;mem:1024")
	reserved := Bundle{NewDynamicReservedScalar("cpus", 1, "role1", "principal1")}

	after, err := b.Apply(&Operation{Type: RESERVE, Resources: reserved})
	require.NoError(t, err)

	back, err := after.Apply(&Operation{Type: UNRESERVE, Resources: reserved})
	require.NoError(t, err)

	assert.True(t, back.Contains(b))
	assert.True(t, b.Contains(back))
}

func TestApplyCreateAndDestroy(t *testing.T) {
	b := MustParse("disk(role1):100")
	vol := Bundle{NewVolume(5, "role1", "id1", "path1")}

	created, err := b.Apply(&Operation{Type: CREATE, Volumes: vol})
	require.NoError(t, err)
	assert.InEpsilon(t, 95.0, created.Subtract(vol).Scalar("disk"), zeroEpsilon)
	assert.True(t, created.Contains(vol))

	destroyed, err := created.Apply(&Operation{Type: DESTROY, Volumes: vol})
	require.NoError(t, err)
	assert.False(t, destroyed.Contains(vol))
	assert.InEpsilon(t, 100.0, destroyed.Scalar("disk"), zeroEpsilon)
}

func TestApplyCreateFailsWithoutDisk(t *testing.T) {
	b := MustParse("disk(role1):3")
	vol := Bundle{NewVolume(5, "role1", "id1", "path1")}

	_, err := b.Apply(&Operation{Type: CREATE, Volumes: vol})
	assert.Error(t, err)
}

func TestApplyDestroyFailsWithoutVolume(t *testing.T) {
	b := MustParse("disk(role1):100")
	vol := Bundle{NewVolume(5, "role1", "id1", "path1")}

	_, err := b.Apply(&Operation{Type: DESTROY, Volumes: vol})
	assert.Error(t, err)
}

func TestApplyCreateSharedVolume(t *testing.T) {
	b := MustParse("disk(role1):100")
	vol := Bundle{NewSharedVolume(5, "role1", "id1", "path1")}

	created, err := b.Apply(&Operation{Type: CREATE, Volumes: vol})
	require.NoError(t, err)
	assert.True(t, created.Contains(vol))
	assert.InEpsilon(t, 5.0, created.Shared().Scalar("disk"), zeroEpsilon)
}

func TestApplyLaunchValidatesOnly(t *testing.T) {
	b := MustParse("cpus:2;mem:1024")

	got, err := b.Apply(&Operation{Type: LAUNCH, Resources: MustParse("cpus:1")})
	require.NoError(t, err)
	assert.True(t, got.Contains(b))

	_, err = b.Apply(&Operation{Type: LAUNCH, Resources: MustParse("cpus:3")})
	assert.Error(t, err)
}
