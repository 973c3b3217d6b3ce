package smartrest

// Outbound message ids (static templates on s/us).
const (
	// MsgDeviceCreation announces the device: 100,<name>,<type>.
	MsgDeviceCreation = "100"

	// MsgHardware sets the hardware fragment: 110,<serial>,<model>,<revision>.
	MsgHardware = "110"

	// MsgConfiguration reports the current configuration: 113,<text>.
	MsgConfiguration = "113"

	// MsgSupportedOperations lists declared operations: 114,<op>,<op>...
	MsgSupportedOperations = "114"

	// MsgRequiredAvailability sets the availability interval: 117,<minutes>.
	MsgRequiredAvailability = "117"

	// MsgMeasurement sends one custom measurement:
	// 200,<fragment>,<series>,<value>,<unit>.
	MsgMeasurement = "200"

	// MsgPendingOperations asks the endpoint to resend PENDING operations.
	MsgPendingOperations = "500"

	// MsgOperationExecuting sets an operation to EXECUTING: 501,<fragment>.
	MsgOperationExecuting = "501"

	// MsgOperationFailed sets an operation to FAILED: 502,<fragment>,<reason>.
	MsgOperationFailed = "502"

	// MsgOperationSuccessful sets an operation to SUCCESSFUL: 503,<fragment>[,<result>].
	MsgOperationSuccessful = "503"
)

// Inbound message ids.
const (
	// MsgDeviceToken carries a new security token in its first field.
	MsgDeviceToken = "71"

	// MsgRestart requests a device restart: 510,<serial>.
	MsgRestart = "510"

	// MsgCommand requests a shell command: 511,<serial>,<command>.
	MsgCommand = "511"

	// MsgConfigurationUpdate replaces the configuration: 513,<serial>,<text>.
	MsgConfigurationUpdate = "513"
)
