package services

import (
	"testing"

	"github.com/fenilmodi00/ipo-allotment-client/models"
	"github.com/stretchr/testify/assert"
)

func TestResolveRegistrarKey(t *testing.T) {
	cases := []struct {
		raw  string
		want models.RegistrarKey
	}{
		{"Link Intime India Private Ltd", models.RegistrarLinkIntime},
		{"MUFG Intime India Pvt. Ltd.", models.RegistrarLinkIntime},
		{"Bigshare Services Pvt Ltd", models.RegistrarBigshare},
		{"KFin Technologies Limited", models.RegistrarKFintech},
		{"kfintech", models.RegistrarKFintech},
		{"Maashitla Securities Private Limited", models.RegistrarMaashitla},
		{"Skyline Financial Services", models.RegistrarSkyline},
		{"Cameo Corporate Services Limited", models.RegistrarCameo},
		{"Purva Sharegistry (India) Pvt Ltd", models.RegistrarPurva},
		{"Integrated Registry Management", models.RegistrarNone},
		{"", models.RegistrarNone},
		{"   ", models.RegistrarNone},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveRegistrarKey(tc.raw))
		})
	}
}

func TestResolveRegistrarKeyPriorityOrder(t *testing.T) {
	// LINK is checked before BIGSHARE
	assert.Equal(t, models.RegistrarLinkIntime, ResolveRegistrarKey("Bigshare Link Services"))
}

func TestRegistrarParamFallsBackToRawName(t *testing.T) {
	assert.Equal(t, "KFINTECH", RegistrarParam("KFin Technologies"))
	assert.Equal(t, "Integrated Registry", RegistrarParam("Integrated Registry"))
}
