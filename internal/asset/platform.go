package asset

import "strconv"

var platformNames = map[int32]string{
	-2: "NoTarget",
	2:  "StandaloneOSX",
	4:  "StandaloneOSXPPC",
	5:  "StandaloneWindows",
	6:  "WebPlayer",
	7:  "WebPlayerStreamed",
	9:  "iOS",
	10: "PS3",
	11: "XBOX360",
	13: "Android",
	16: "NaCl",
	17: "StandaloneLinux",
	18: "FlashPlayer",
	19: "StandaloneWindows64",
	20: "WebGL",
	21: "WSAPlayer",
	24: "StandaloneLinux64",
	25: "StandaloneLinuxUniversal",
	26: "WP8Player",
	27: "StandaloneOSXIntel64",
	28: "BlackBerry",
	29: "Tizen",
	30: "PSP2",
	31: "PS4",
	32: "PSM",
	33: "XboxOne",
	34: "SamsungTV",
	35: "N3DS",
	36: "WiiU",
	37: "tvOS",
	38: "Switch",
	39: "Lumin",
	40: "Stadia",
	41: "CloudRendering",
	44: "PS5",
}

// PlatformName returns the build target name for a platform number.
func PlatformName(p int32) string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return "Unknown(" + strconv.Itoa(int(p)) + ")"
}
