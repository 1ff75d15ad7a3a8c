package config

import "github.com/spf13/viper"

type Features struct {
	AuthEnabled    bool
	BillingEnabled bool
	EmailEnabled   bool
}

func featuresFrom(v *viper.Viper) Features {
	return Features{
		AuthEnabled:    v.GetBool("AUTH_ENABLED"),
		BillingEnabled: v.GetBool("BILLING_ENABLED"),
		EmailEnabled:   v.GetBool("EMAIL_ENABLED"),
	}
}
