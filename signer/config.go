package signer

// Config configures the local key store
type Config struct {
	// PrivateKeys are hex encoded private keys
	PrivateKeys []string `mapstructure:"PrivateKeys"`

	// KeyFiles are go-ethereum encrypted key files
	KeyFiles []KeyFileConfig `mapstructure:"KeyFiles"`
}

// KeyFileConfig locates an encrypted key file
type KeyFileConfig struct {
	// Path is the key file path
	Path string `mapstructure:"Path"`

	// Password decrypts the key file
	Password string `mapstructure:"Password"`
}
