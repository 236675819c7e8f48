package domain

import (
	"testing"

	"factorycore/testutil"
)

func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "the domain model is shared by every layer")
}
