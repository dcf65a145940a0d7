package fmapi

// Message codes the client reacts to.
const (
	CodeOK               = 0
	CodeRecordMissing    = 101
	CodeFieldMissing     = 102
	CodeLayoutMissing    = 105
	CodeAccessDenied     = 212
	CodeModIDMismatch    = 306
	CodeRecordLocked     = 301
	CodeNoRecordsMatch   = 401
	CodeInvalidToken     = 952
	CodeSessionsExceeded = 953
)

// UnknownError is the description used for codes missing from the table.
const UnknownError = "Unknown error"

var descriptions = map[int]string{
	-1:   "Unknown error",
	0:    "No error",
	1:    "User canceled action",
	2:    "Memory error",
	3:    "Command is unavailable",
	4:    "Command is unknown",
	5:    "Command is invalid",
	6:    "File is read-only",
	7:    "Running out of memory",
	9:    "Insufficient privileges",
	10:   "Requested data is missing",
	11:   "Name is not valid",
	12:   "Name already exists",
	13:   "File or object is in use",
	14:   "Out of range",
	15:   "Can't divide by zero",
	16:   "Operation failed; request retry",
	17:   "Attempt to convert foreign character set to UTF-16 failed",
	18:   "Client must provide account information to proceed",
	19:   "String contains characters other than A-Z, a-z, 0-9 (ASCII)",
	20:   "Command or operation canceled by triggered script",
	21:   "Request not supported",
	100:  "File is missing",
	101:  "Record is missing",
	102:  "Field is missing",
	103:  "Relationship is missing",
	104:  "Script is missing",
	105:  "Layout is missing",
	106:  "Table is missing",
	107:  "Index is missing",
	108:  "Value list is missing",
	109:  "Privilege set is missing",
	110:  "Related tables are missing",
	111:  "Field repetition is invalid",
	112:  "Window is missing",
	113:  "Function is missing",
	114:  "File reference is missing",
	115:  "Menu set is missing",
	116:  "Layout object is missing",
	117:  "Data source is missing",
	118:  "Theme is missing",
	130:  "Files are damaged or missing and must be reinstalled",
	131:  "Language pack files are missing",
	200:  "Record access is denied",
	201:  "Field cannot be modified",
	202:  "Field access is denied",
	203:  "No records in file to print, or password doesn't allow print access",
	204:  "No access to field(s) in sort order",
	205:  "User does not have access privileges to create new records; import will overwrite existing data",
	206:  "User does not have password change privileges, or file is not modifiable",
	207:  "User does not have privileges to change database schema, or file is not modifiable",
	208:  "Password does not contain enough characters",
	209:  "New password must be different from existing one",
	210:  "User account is inactive",
	211:  "Password has expired",
	212:  "Invalid user account or password",
	214:  "Too many login attempts",
	215:  "Administrator privileges cannot be duplicated",
	216:  "Guest account cannot be duplicated",
	217:  "User does not have sufficient privileges to modify administrator account",
	218:  "Password and verify password do not match",
	300:  "File is locked or in use",
	301:  "Record is in use by another user",
	302:  "Table is in use by another user",
	303:  "Database schema is in use by another user",
	304:  "Layout is in use by another user",
	306:  "Record modification ID does not match",
	307:  "Transaction could not be locked because of a communication error with the host",
	308:  "Theme is locked and in use by another user",
	400:  "Find criteria are empty",
	401:  "No records match the request",
	402:  "Selected field is not a match field for a lookup",
	404:  "Sort order is invalid",
	405:  "Number of records specified exceeds number of records that can be omitted",
	406:  "Replace/reserialize criteria are invalid",
	407:  "One or both match fields are missing (invalid relationship)",
	408:  "Specified field has inappropriate data type for this operation",
	409:  "Import order is invalid",
	410:  "Export order is invalid",
	412:  "Wrong version of FileMaker Pro used to recover file",
	413:  "Specified field has inappropriate field type",
	414:  "Layout cannot display the result",
	415:  "One or more required related records are not available",
	416:  "A primary key is required from the data source table",
	417:  "File is not a supported data source",
	418:  "Internal failure in INSERT operation into a field",
	500:  "Date value does not meet validation entry options",
	501:  "Time value does not meet validation entry options",
	502:  "Number value does not meet validation entry options",
	503:  "Value in field is not within the range specified in validation entry options",
	504:  "Value in field is not unique, as required in validation entry options",
	505:  "Value in field is not an existing value in the file, as required in validation entry options",
	506:  "Value in field is not listed in the value list specified in validation entry option",
	507:  "Value in field failed calculation test of validation entry option",
	508:  "Invalid value entered in Find mode",
	509:  "Field requires a valid value",
	510:  "Related value is empty or unavailable",
	511:  "Value in field exceeds maximum field size",
	512:  "Record was already modified",
	513:  "No validation was specified but data cannot fit into the field",
	800:  "Unable to create file on disk",
	801:  "Unable to create temporary file on System disk",
	802:  "Unable to open file",
	803:  "File is single-user, or host cannot be found",
	804:  "File cannot be opened as read-only in its current state",
	805:  "File is damaged; use Recover command",
	806:  "File cannot be opened with this version of a FileMaker client",
	807:  "File is not a FileMaker Pro file or is severely damaged",
	808:  "Cannot open file because access privileges are damaged",
	809:  "Disk/volume is full",
	810:  "Disk/volume is locked",
	811:  "Temporary file cannot be opened as FileMaker Pro file",
	812:  "Exceeded host's capacity",
	813:  "Record synchronization error on network",
	814:  "File(s) cannot be opened because maximum number is open",
	815:  "Couldn't open lookup file",
	816:  "Unable to convert file",
	817:  "Bad data source",
	820:  "File is locked by another user",
	1200: "Generic calculation error",
	1201: "Too few parameters in the function",
	1202: "Too many parameters in the function",
	1203: "Unexpected end of calculation",
	1204: "Number, text constant, field name, or \"(\" expected",
	1205: "Comment is not terminated with \"*/\"",
	1206: "Text constant must end with a quotation mark",
	1207: "Unbalanced parenthesis",
	1208: "Operator missing, function not found, or \"(\" not expected",
	1209: "Name (such as field name or layout name) is missing",
	1210: "Plug-in function or script step has already been registered",
	1211: "List usage is not allowed in this function",
	1212: "An operator (for example, +, -, *) is expected here",
	1213: "This variable has already been defined in the Let function",
	1214: "Summary function is not allowed here",
	1215: "This parameter is an invalid Get function parameter",
	1216: "Only summary fields are allowed as first argument in GetSummary",
	1217: "Break field is invalid",
	1218: "Cannot evaluate the number",
	1219: "A field cannot be used in its own formula",
	1220: "Field type must be normal or calculated",
	1221: "Data type must be number, date, time, or timestamp",
	1222: "Calculation cannot be stored",
	1223: "Function referred to is not yet implemented",
	1224: "Function referred to does not exist",
	1225: "Function referred to is not supported in this context",
	1300: "The specified name can't be used",
	1301: "A parameter of the imported or pasted function has the same name as a function in the file",
	1400: "ODBC client driver initialization failed",
	1401: "Failed to allocate environment (ODBC)",
	1402: "Failed to free environment (ODBC)",
	1403: "Failed to disconnect (ODBC)",
	1404: "Failed to allocate connection (ODBC)",
	1405: "Failed to free connection (ODBC)",
	1406: "Failed check for SQL API (ODBC)",
	1407: "Failed to allocate statement (ODBC)",
	1408: "Extended error (ODBC)",
	1409: "Error (ODBC)",
	1413: "Failed communication link (ODBC)",
	1450: "Action requires PHP privilege extension",
	1451: "Action requires that current file be remote",
	1501: "SMTP authentication failed",
	1502: "Connection refused by SMTP server",
	1503: "Error with SSL",
	1504: "SMTP server requires the connection to be encrypted",
	1505: "Specified authentication is not supported by SMTP server",
	1506: "Email message(s) could not be sent successfully",
	1507: "Unable to log in to the SMTP server",
	1550: "Cannot load the plug-in, or the plug-in is not a valid plug-in",
	1551: "Cannot install the plug-in; cannot delete an existing plug-in or write to the folder or disk",
	1626: "Protocol is not supported",
	1627: "Authentication failed",
	1628: "There was an error with SSL",
	1629: "Connection timed out; the timeout value is 60 seconds",
	1630: "URL format is incorrect",
	1631: "Connection failed",
	1632: "The certificate has expired",
	1633: "The certificate is self-signed",
	1634: "A certificate verification error occurred",
	1635: "Connection is unencrypted",
	1700: "Resource doesn't exist",
	1701: "Host is unable to receive the request",
	1702: "Authentication information wasn't provided in the correct format; verify the value of the Authorization header",
	1703: "Invalid username or password, or JSON Web Token",
	1704: "Resource doesn't support the specified HTTP verb",
	1705: "Required HTTP header wasn't specified",
	1706: "Parameter isn't supported",
	1707: "Required parameter wasn't specified in the request",
	1708: "Parameter value is invalid",
	1709: "Operation is invalid for the resource's current status",
	1710: "JSON input isn't syntactically valid",
	1711: "Host's license has expired",
	1712: "Private key file already exists; unable to replace it with a new one",
	1713: "The API request is not supported for this operating system",
	1714: "OData service is not enabled",
	1715: "OData API exceeds request limit",
	1716: "Invalid OData session token",
	1717: "Invalid argument to OData function",
	1718: "OData: URL is too long",
	952:  "Invalid FileMaker Data API token",
	953:  "Maximum number of FileMaker Data API sessions exceeded",
	954:  "Unsupported XML grammar",
	955:  "Unsupported XML grammar",
	956:  "Maximum number of Admin API sessions exceeded",
	957:  "Conflicting commands",
	958:  "Parameter missing",
	959:  "Custom Web Publishing technology is disabled",
	960:  "Parameter is invalid",
}

// Describe returns the human readable description for code.
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return UnknownError
}
