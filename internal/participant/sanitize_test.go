/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package participant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	require.Equal(t, "U012AB3CD", SanitizeSlackID("U012AB3CD"))
	require.Equal(t, "xOR11", SanitizeSlackID("x' OR 1=1"))
	require.Equal(t, "", SanitizeSlackID("ü-é"))

	require.Equal(t, "Steve scriptalert(1)/script", SanitizeName(`  Steve <script>alert(1)</script> `))
	require.Equal(t, "Tom  Jerry", SanitizeName("Tom & Jerry"))
	require.Equal(t, "Zoë", SanitizeName("Zoë"))

	require.Equal(t, "Steve_42", SanitizeMinecraftUsername("Steve_42"))
	require.Equal(t, "Notch", SanitizeMinecraftUsername("No tch!"))
	require.Equal(t, "abcdefghijklmnop", SanitizeMinecraftUsername("abcdefghijklmnopqrstuvwxyz"))
}
