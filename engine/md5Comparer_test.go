package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wastore/azure-storage-core-go/common"
)

func TestMd5ComparerMatch(t *testing.T) {
	a := assert.New(t)
	c := &md5Comparer{
		expected:         []byte{1, 2, 3},
		actualAsReceived: []byte{1, 2, 3},
		validationOption: common.EHashValidationOption.FailIfDifferent(),
		logger:           common.NoneLogger{},
	}
	a.NoError(c.Check())
}

func TestMd5ComparerMismatch(t *testing.T) {
	a := assert.New(t)
	c := &md5Comparer{
		expected:         []byte{1, 2, 3},
		actualAsReceived: []byte{4, 5, 6},
		validationOption: common.EHashValidationOption.FailIfDifferent(),
		logger:           common.NoneLogger{},
	}
	a.Equal(ErrMd5Mismatch, c.Check())

	// LogOnly downgrades the mismatch to a warning
	c.validationOption = common.EHashValidationOption.LogOnly()
	a.NoError(c.Check())
}

func TestMd5ComparerMissingExpected(t *testing.T) {
	a := assert.New(t)
	c := &md5Comparer{
		expected:         nil,
		actualAsReceived: []byte{1, 2, 3},
		validationOption: common.EHashValidationOption.FailIfDifferent(),
		logger:           common.NoneLogger{},
	}
	// nothing to compare against; logged, not an error
	a.NoError(c.Check())
}

func TestMd5ComparerNoCheck(t *testing.T) {
	a := assert.New(t)
	c := &md5Comparer{
		expected:         []byte{1, 2, 3},
		actualAsReceived: []byte{4, 5, 6},
		validationOption: common.EHashValidationOption.NoCheck(),
		logger:           common.NoneLogger{},
	}
	a.NoError(c.Check())
}

func TestMd5ComparerActualMissing(t *testing.T) {
	a := assert.New(t)
	c := &md5Comparer{
		expected:         []byte{1, 2, 3},
		actualAsReceived: nil,
		validationOption: common.EHashValidationOption.FailIfDifferent(),
		logger:           common.NoneLogger{},
	}
	a.Equal(errActualMd5NotComputed, c.Check())
}
