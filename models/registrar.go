package models

// RegistrarKey is the canonical key of an IPO registrar understood by the check endpoint
type RegistrarKey string

const (
	RegistrarNone       RegistrarKey = ""
	RegistrarLinkIntime RegistrarKey = "LINK_INTIME"
	RegistrarBigshare   RegistrarKey = "BIGSHARE"
	RegistrarKFintech   RegistrarKey = "KFINTECH"
	RegistrarMaashitla  RegistrarKey = "MAASHITLA"
	RegistrarSkyline    RegistrarKey = "SKYLINE"
	RegistrarCameo      RegistrarKey = "CAMEO"
	RegistrarPurva      RegistrarKey = "PURVA"
)
