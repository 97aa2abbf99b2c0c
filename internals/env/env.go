package env

import (
	"log"
	"path/filepath"
	"strconv"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zenv"
)

type EnvStruct struct {
	HOME        string `zog:"HOME"`
	PORT        int    `zog:"HOOKCODE_PORT"`
	CONFIG      string `zog:"HOOKCODE_CONFIG"`
	LISTEN_ADDR string
	LISTEN_PROT string
	BASE_URL    string
}

var env *EnvStruct

var EnvSchema = z.Struct(z.Shape{
	"HOME":   z.String(),
	"PORT":   z.Int().Default(57877),
	"CONFIG": z.String().Optional().Trim(),
})

func Get() *EnvStruct {
	if env == nil {
		env = &EnvStruct{}
		errs := EnvSchema.Parse(zenv.NewDataProvider(), env)
		if errs != nil {
			log.Fatal("[hookcode] Failed to parse environment variables", errs)
		}

		env.LISTEN_PROT = "http://"
		env.LISTEN_ADDR = "localhost:" + strconv.Itoa(env.PORT)
		env.BASE_URL = env.LISTEN_PROT + env.LISTEN_ADDR
		if env.CONFIG == "" {
			env.CONFIG = filepath.Join(env.HOME, ".hookcode", "hookcode.yaml")
		}
	}
	return env
}
