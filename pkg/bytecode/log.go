package bytecode

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("classvm.bytecode")
