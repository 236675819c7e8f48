package core

import (
	"testing"

	"factorycore/testutil"
)

func TestCoreStaysTransportFree(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.TransportImportForbidden, "transports depend on core, not the reverse")
}
