package config

// MountOptions holds high-level settings for mounting.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug      bool   // fuse debug logs
	AllowOther bool   // let other users access the mount; needs user_allow_other in /etc/fuse.conf
	FsName     string // mount's FsName
	Name       string // mount's Name
}
