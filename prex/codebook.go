package prex

// statusCodes maps PJL status codes to their published meaning. The
// list is the subset seen in the wild; unknown codes are shown raw.
var statusCodes = map[string]string{
	"10001": "Ready",
	"10002": "Ready (offline)",
	"10003": "Warming up",
	"10004": "Self test",
	"10005": "Reset, initializing",
	"10006": "Toner low",
	"10007": "Canceling job",
	"10010": "Status buffer overflow",
	"10011": "Buffered jobs, auxiliary IO",
	"10013": "Self test",
	"10014": "Printing test",
	"10015": "Printing font list",
	"10016": "Engine test",
	"10017": "Demo page",
	"10018": "Resetting menus to defaults",
	"10023": "Printing",
	"10024": "Processor overload",
	"10025": "Memory shortage",
	"10029": "Formfeeding",
	"10030": "Job message",
	"20001": "Generic syntax error",
	"20002": "Unsupported command",
	"20004": "Unsupported personality or system",
	"20006": "Illegal character or line terminated by UEL",
	"20007": "WHITESPACE or linefeed missing",
	"20008": "Invalid alphanumeric value",
	"20009": "Invalid numeric value",
	"20010": "Invalid category or value",
	"20011": "Missing category or value",
	"20012": "Extra data after command",
	"20014": "Numeric value out of range",
	"20015": "File system command error",
	"20016": "No alphanumeric value after command modifier",
	"20017": "Quoted string expected",
	"20018": "String too long",
	"20019": "Unsupported command modifier",
	"20020": "Command modifier missing",
	"20021": "Option name and equal sign encountered, value missing",
	"20022": "Option name repeated",
	"20023": "File access error",
	"20025": "Maximum parameter length exceeded",
	"25001": "Generic warning error",
	"25002": "PJL prefix missing",
	"25003": "Alphanumeric too long",
	"25004": "Quoted string too long",
	"25005": "Numeric value too long",
	"25006": "Unsupported option name",
	"25007": "Option name requires value",
	"25008": "Value type mismatch",
	"25009": "Value out of range",
	"25010": "Value underflow, rounded",
	"25011": "Value overflow, clamped",
	"25012": "Value truncated to integer",
	"25016": "Option name received with no value",
	"25017": "String empty, option ignored",
	"27001": "Generic semantic error",
	"27002": "EOJ encountered without matching JOB",
	"27003": "Password protected, command ignored",
	"27004": "Cannot modify item, read-only",
	"30010": "Status readback, output bin attendance",
	"30016": "Memory shortage, job cleared",
	"30017": "Memory shortage, data lost",
	"30018": "Memory settings changed after job",
	"30027": "Manual feed requested",
	"30034": "Paper jam",
	"30035": "Printer open",
	"30036": "Paper out",
	"30094": "Close top cover",
	"30119": "Media mount request",
	"32000": "General file system failure",
	"32001": "Volume not available",
	"32002": "Disk full",
	"32003": "File not found",
	"32004": "No free file descriptors",
	"32005": "Invalid number of bytes",
	"32006": "File already exists",
	"32007": "Illegal name",
	"32008": "Cannot delete root directory",
	"32009": "File operation attempted on a directory",
	"32010": "Directory operation attempted on a file",
	"32011": "Not same volume",
	"32012": "Read only filesystem",
	"32013": "Directory not empty",
	"32014": "Directory corrupt",
	"32015": "Bad disk",
	"32016": "Not initialized",
	"32017": "Filesystem full",
	"32018": "Hardware failure",
	"32019": "Access denied",
	"32021": "Cannot rename across volumes",
	"32022": "Bad sequence number",
	"32051": "Sequential access only",
	"32052": "Bad file descriptor",
	"32054": "Operation interrupted",
	"32056": "Unsupported operation",
	"32058": "Write protected",
	"32064": "Invalid parameter",
	"35078": "PJL password set to default",
	"40000": "Sleep mode",
	"40010": "Toner cartridge problem",
	"40011": "Accessory IO error",
	"40019": "Output bin full",
	"40020": "Binding agent out",
	"40021": "Printer open",
	"40022": "Paper jam",
	"40024": "FE cartridge",
	"40026": "Paper tray empty",
	"40038": "Toner low",
	"40046": "Insert cartridge",
	"40048": "Remove and check cartridge",
	"40050": "Fuser error",
	"40051": "Beam detect error",
	"40052": "Scanner error",
	"40053": "Fan failure",
	"40054": "Air temperature sensor error",
	"40055": "DRAM controller error",
	"40056": "Memory error",
	"40059": "Duplex guide failure",
	"40062": "Memory parity error",
	"40063": "Memory check error",
	"40064": "Post failure",
	"40065": "External binding device attention",
	"40066": "External device failure",
	"40079": "Printer manually taken offline",
	"40093": "Toner out",
	"40129": "Black transport mode",
	"41002": "Media request, manual feed",
	"41003": "Media request, unexpected size",
	"41004": "Media request, unexpected type",
	"41005": "Media request, tray empty",
	"42012": "Job held, timeout",
	"43032": "Envelope feeder empty",
	"50000": "General hardware failure",
	"50001": "ROM or RAM error",
	"50002": "Engine fuser error",
	"50003": "Engine beam detect error",
	"50004": "Engine scanner error",
	"50005": "Engine fan error",
	"50012": "Formatter error",
	"50013": "Firmware fault",
	"55000": "Personality firmware error",
}

// StatusText returns the published meaning of a status code, or the
// empty string for an unknown code.
func StatusText(code string) string {
	return statusCodes[code]
}
