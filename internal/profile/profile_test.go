package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/testutil"
)

func TestValidate(t *testing.T) {
	testutil.Given(t, "a profile missing its sector", func(t *testing.T) {
		p := &OrganizationProfile{Country: "SA"}

		err := p.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	testutil.Given(t, "a profile missing its country", func(t *testing.T) {
		p := &OrganizationProfile{Sector: "Banking"}

		err := p.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	testutil.Given(t, "a profile with duplicated list attributes", func(t *testing.T) {
		p := &OrganizationProfile{
			Sector:          "Banking",
			Country:         "SA",
			DataSensitivity: []string{" pii ", "pii", "", "financial"},
			CloudProviders:  []string{"AWS", " aws", "Azure"},
		}

		require.NoError(t, p.Validate())
		assert.Equal(t, []string{"pii", "financial"}, p.DataSensitivity)
		assert.Equal(t, []string{"aws", "azure"}, p.CloudProviders)
	})
}

func TestAttributes(t *testing.T) {
	p := &OrganizationProfile{
		Sector:               "Banking",
		Country:              "SA",
		HostsPaymentCardData: true,
		CloudProviders:       []string{"aws", "gcp"},
	}

	attrs := p.Attributes()
	assert.Equal(t, "Banking", attrs["sector"])
	assert.Equal(t, true, attrs["hosts_payment_card_data"])

	// The activation map never aliases the profile's slices.
	providers := attrs["cloud_providers"].([]string)
	providers[0] = "mutated"
	assert.Equal(t, "aws", p.CloudProviders[0])
}
