package config

import "github.com/spf13/viper"

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr       string
		AdminToken string `mapstructure:"admin_token"`
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Stream struct {
		TokenSecret string `mapstructure:"token_secret"`
		MediaDir    string `mapstructure:"media_dir"`
	} `mapstructure:"stream"`

	XRPL struct {
		RPCURL         string `mapstructure:"rpc_url"`
		Account        string
		Secret         string
		ConfirmTimeout int `mapstructure:"confirm_timeout_sec"`
	} `mapstructure:"xrpl"`

	Settle struct {
		Enabled bool
		Hour    int // local hour of day for the scheduled run
	} `mapstructure:"settle"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
