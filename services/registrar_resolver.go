package services

import (
	"strings"

	"github.com/fenilmodi00/ipo-allotment-client/models"
)

type registrarRule struct {
	key       models.RegistrarKey
	fragments []string
}

// Checked in order; the first rule with a matching fragment wins.
var registrarRules = []registrarRule{
	{key: models.RegistrarLinkIntime, fragments: []string{"LINK", "MUFG"}},
	{key: models.RegistrarBigshare, fragments: []string{"BIGSHARE"}},
	{key: models.RegistrarKFintech, fragments: []string{"KFIN"}},
	{key: models.RegistrarMaashitla, fragments: []string{"MAASHITLA"}},
	{key: models.RegistrarSkyline, fragments: []string{"SKYLINE"}},
	{key: models.RegistrarCameo, fragments: []string{"CAMEO"}},
	{key: models.RegistrarPurva, fragments: []string{"PURVA"}},
}

// ResolveRegistrarKey maps free-text registrar names such as "Link Intime India
// Private Ltd" onto a canonical key. It returns RegistrarNone when nothing matches.
func ResolveRegistrarKey(rawName string) models.RegistrarKey {
	upper := strings.ToUpper(rawName)
	if strings.TrimSpace(upper) == "" {
		return models.RegistrarNone
	}

	for _, rule := range registrarRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(upper, fragment) {
				return rule.key
			}
		}
	}
	return models.RegistrarNone
}

// RegistrarParam returns the value sent to the check endpoint: the canonical key
// when one resolves, the raw registrar name otherwise.
func RegistrarParam(rawName string) string {
	if key := ResolveRegistrarKey(rawName); key != models.RegistrarNone {
		return string(key)
	}
	return rawName
}
